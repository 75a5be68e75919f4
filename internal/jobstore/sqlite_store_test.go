package jobstore

import (
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func queuedJob(id, dataset string, createdAt time.Time) *ExportJob {
	return &ExportJob{
		ID:        id,
		DatasetID: dataset,
		Status:    JobStatusQueued,
		Params: ExportParams{
			DatasetID:     dataset,
			Format:        "csv",
			TrackIDs:      []string{"length", "pan_category"},
			SortTrack:     "length",
			SortDirection: "desc",
		},
		CreatedAt: createdAt,
	}
}

func TestJobLifecycle(t *testing.T) {
	s := testStore(t)

	job := queuedJob("job-1", "ecoli", time.Now())
	if err := s.CreateJob(job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got == nil || got.Status != JobStatusQueued || got.StartedAt != nil {
		t.Fatalf("queued job = %+v", got)
	}
	if got.Params.SortTrack != "length" || got.Params.SortDirection != "desc" ||
		len(got.Params.TrackIDs) != 2 {
		t.Fatalf("params roundtrip = %+v", got.Params)
	}

	if err := s.UpdateJobStarted("job-1"); err != nil {
		t.Fatalf("UpdateJobStarted: %v", err)
	}
	got, _ = s.GetJob("job-1")
	if got.Status != JobStatusRunning || got.StartedAt == nil {
		t.Fatalf("running job = %+v", got)
	}

	if err := s.SaveResult("job-1", "text/csv", []byte("position,gene\n0,a\n")); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if err := s.UpdateJobStatus("job-1", JobStatusCompleted, ""); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	got, _ = s.GetJob("job-1")
	if got.Status != JobStatusCompleted || got.FinishedAt == nil {
		t.Fatalf("completed job = %+v", got)
	}

	data, contentType, err := s.GetResult("job-1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if contentType != "text/csv" || string(data) != "position,gene\n0,a\n" {
		t.Fatalf("result = %q %q", contentType, data)
	}

	missing, err := s.GetJob("nope")
	if err != nil || missing != nil {
		t.Fatalf("missing job = %+v, %v", missing, err)
	}
	if data, _, err := s.GetResult("nope"); err != nil || data != nil {
		t.Fatalf("missing result = %q, %v", data, err)
	}
}

func TestRestartRecovery(t *testing.T) {
	s := testStore(t)

	now := time.Now()
	if err := s.CreateJob(queuedJob("old", "ecoli", now.Add(-time.Hour))); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(queuedJob("new", "ecoli", now)); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(queuedJob("crashed", "ecoli", now)); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.UpdateJobStarted("crashed"); err != nil {
		t.Fatalf("UpdateJobStarted: %v", err)
	}

	if err := s.MarkRunningAsFailed("server restarted"); err != nil {
		t.Fatalf("MarkRunningAsFailed: %v", err)
	}
	crashed, _ := s.GetJob("crashed")
	if crashed.Status != JobStatusFailed || crashed.Error != "server restarted" || crashed.FinishedAt == nil {
		t.Fatalf("crashed job = %+v", crashed)
	}

	queued, err := s.ListQueuedJobs()
	if err != nil {
		t.Fatalf("ListQueuedJobs: %v", err)
	}
	if len(queued) != 2 || queued[0].ID != "old" || queued[1].ID != "new" {
		ids := make([]string, len(queued))
		for i, j := range queued {
			ids[i] = j.ID
		}
		t.Fatalf("queued = %v, want [old new] oldest first", ids)
	}
}

func TestListJobsByDataset(t *testing.T) {
	s := testStore(t)

	now := time.Now()
	s.CreateJob(queuedJob("a", "ecoli", now.Add(-time.Hour)))
	s.CreateJob(queuedJob("b", "ecoli", now))
	s.CreateJob(queuedJob("c", "salmonella", now))

	jobs, err := s.ListJobsByDataset("ecoli")
	if err != nil {
		t.Fatalf("ListJobsByDataset: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "b" || jobs[1].ID != "a" {
		t.Fatalf("jobs = %+v, want [b a] newest first", jobs)
	}
}

func TestDeleteExpiredJobs(t *testing.T) {
	s := testStore(t)

	s.CreateJob(queuedJob("stale", "ecoli", time.Now().Add(-48*time.Hour)))
	s.SaveResult("stale", "image/png", []byte{0x89, 0x50})
	s.UpdateJobStatus("stale", JobStatusCompleted, "")
	// Age the finish stamp past the retention window.
	old := time.Now().Add(-48 * time.Hour).Format(time.RFC3339)
	if _, err := s.db.Exec("UPDATE export_jobs SET finished_at = ? WHERE job_id = ?", old, "stale"); err != nil {
		t.Fatalf("age job: %v", err)
	}

	s.CreateJob(queuedJob("fresh", "ecoli", time.Now()))
	s.UpdateJobStatus("fresh", JobStatusCompleted, "")

	deleted, err := s.DeleteExpiredJobs(24)
	if err != nil {
		t.Fatalf("DeleteExpiredJobs: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if job, _ := s.GetJob("stale"); job != nil {
		t.Fatalf("stale job should be gone, got %+v", job)
	}
	if data, _, _ := s.GetResult("stale"); data != nil {
		t.Fatal("stale result should be gone")
	}
	if job, _ := s.GetJob("fresh"); job == nil {
		t.Fatal("fresh job should survive")
	}
}

func TestDeleteJob(t *testing.T) {
	s := testStore(t)

	s.CreateJob(queuedJob("gone", "ecoli", time.Now()))
	s.SaveResult("gone", "text/csv", []byte("x"))

	if err := s.DeleteJob("gone"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if job, _ := s.GetJob("gone"); job != nil {
		t.Fatal("job should be deleted")
	}
	if data, _, _ := s.GetResult("gone"); data != nil {
		t.Fatal("result should be deleted")
	}
}
