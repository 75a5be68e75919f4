// Package api provides HTTP handlers for the heatmap viewer server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/heatview/server/internal/data/pav"
	"github.com/heatview/server/internal/detail"
	"github.com/heatview/server/internal/hittest"
	"github.com/heatview/server/internal/jobstore"
	"github.com/heatview/server/internal/service"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry    *DatasetRegistry
	CORSOrigins []string
	Sessions    *service.SessionManager
	Jobs        *JobManager
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Global datasets endpoint (not dataset-scoped)
	r.Get("/api/datasets", datasetsHandler(cfg.Registry))

	// Global gene_lookup endpoint (resolves gene_id -> matching datasets)
	r.Get("/api/gene_lookup", geneLookupHandler(cfg.Registry))

	// Dataset-scoped routes: /d/{dataset}/...
	r.Route("/d/{dataset}", func(r chi.Router) {
		r.Use(datasetMiddleware(cfg.Registry))

		r.Route("/api", func(r chi.Router) {
			r.Get("/metadata", datasetMetadataHandler)
			r.Get("/stats", datasetStatsHandler)
			r.Get("/tracks", datasetTracksHandler)
			r.Get("/search", datasetSearchHandler)
			r.Get("/genes/{gene}", datasetGeneDetailHandler)
			r.Get("/genes/{gene}/presence", datasetGenePresenceHandler)

			// Pipeline artifacts
			r.Get("/pipeline/tree", pipelineArtifactHandler((*service.ViewerService).Tree))
			r.Get("/pipeline/clusters", pipelineArtifactHandler((*service.ViewerService).Clusters))
			r.Get("/pipeline/summary", pipelineArtifactHandler((*service.ViewerService).Summary))
			r.Get("/pipeline/reactions", pipelineArtifactHandler((*service.ViewerService).Reactions))
			r.Get("/reactions/coloring", datasetReactionColoringHandler)

			// Viewer sessions start here; interactions are session-scoped.
			r.Post("/sessions", sessionCreateHandler(cfg.Sessions))
		})
	})

	// Session-scoped routes: /api/sessions/{session}/...
	r.Route("/api/sessions/{session}", func(r chi.Router) {
		r.Use(sessionMiddleware(cfg.Sessions))

		r.Get("/state", sessionStateHandler)
		r.Post("/zoom", sessionZoomHandler)
		r.Post("/scroll", sessionScrollHandler)
		r.Post("/minimap/click", sessionMinimapClickHandler)
		r.Post("/sort", sessionSortHandler)
		r.Post("/sort/reset", sessionSortResetHandler)
		r.Post("/view/reset", sessionViewResetHandler)
		r.Post("/tracks/{track}/toggle", sessionToggleTrackHandler)
		r.Post("/search", sessionSearchHandler)
		r.Get("/heatmap.png", sessionHeatmapHandler)
		r.Get("/minimap.png", sessionMinimapHandler)
		r.Get("/hit", sessionHitHandler)
		r.Post("/export", sessionExportHandler(cfg.Jobs))
		r.Delete("/", sessionDeleteHandler(cfg.Sessions))
	})

	// Export job endpoints (not dataset-scoped; jobs carry their dataset)
	r.Route("/api/exports", func(r chi.Router) {
		r.Get("/{job_id}", exportStatusHandler(cfg.Jobs))
		r.Get("/{job_id}/result", exportResultHandler(cfg.Jobs))
		r.Delete("/{job_id}", exportCancelHandler(cfg.Jobs))
	})

	return r
}

// Context keys for dataset service and session
type ctxKey string

const (
	datasetServiceKey ctxKey = "datasetService"
	sessionKey        ctxKey = "session"
)

// datasetMiddleware resolves the dataset from URL and injects the viewer
// service into context.
func datasetMiddleware(registry *DatasetRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			datasetID := chi.URLParam(r, "dataset")
			svc := registry.Get(datasetID)
			if svc == nil {
				http.Error(w, "dataset not found: "+datasetID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), datasetServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getDatasetService(r *http.Request) *service.ViewerService {
	if svc, ok := r.Context().Value(datasetServiceKey).(*service.ViewerService); ok {
		return svc
	}
	return nil
}

// sessionMiddleware resolves the session from URL and injects it into
// context. Resolution also marks the session as recently used.
func sessionMiddleware(sessions *service.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := chi.URLParam(r, "session")
			sess, ok := sessions.Get(sessionID)
			if !ok {
				http.Error(w, "session not found: "+sessionID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getSession(r *http.Request) *service.Session {
	if sess, ok := r.Context().Value(sessionKey).(*service.Session); ok {
		return sess
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// datasetsHandler returns the list of available datasets.
func datasetsHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"default":  registry.DefaultDatasetID(),
			"datasets": registry.Datasets(),
			"title":    registry.Title(),
		})
	}
}

// geneLookupHandler resolves a gene_id to the list of datasets containing it.
func geneLookupHandler(registry *DatasetRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		geneID := strings.TrimSpace(r.URL.Query().Get("gene_id"))
		if geneID == "" {
			http.Error(w, "missing required query param: gene_id", http.StatusBadRequest)
			return
		}

		var matchingDatasets []string
		for _, dsID := range registry.DatasetIDs() {
			svc := registry.Get(dsID)
			if svc == nil {
				continue
			}
			if svc.HasGene(geneID) {
				matchingDatasets = append(matchingDatasets, dsID)
			}
		}

		writeJSON(w, map[string]interface{}{
			"gene_id":  geneID,
			"datasets": matchingDatasets,
		})
	}
}

// Dataset-scoped handlers (get service from context)

func datasetMetadataHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	writeJSON(w, svc.Meta())
}

func datasetStatsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	writeJSON(w, svc.Stats())
}

func datasetTracksHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"tracks": svc.TrackCatalog(),
	})
}

func datasetSearchHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	data, err := svc.SearchJSON(r.URL.Query().Get("q"))
	if err != nil {
		http.Error(w, "search failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// geneParam extracts the {gene} path segment. Gene identifiers can carry
// characters like "|" that arrive percent-encoded.
func geneParam(r *http.Request) string {
	raw := chi.URLParam(r, "gene")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		return unescaped
	}
	return raw
}

// datasetGeneDetailHandler serves the full record of one gene. A numeric
// path segment addresses a genome position (the hit-test flow); anything
// else resolves as a gene identifier.
func datasetGeneDetailHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	raw := geneParam(r)
	var (
		info *detail.Info
		err  error
	)
	if idx, convErr := strconv.Atoi(raw); convErr == nil {
		info, err = svc.Detail(idx)
	} else {
		info, err = svc.DetailByID(raw)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, info)
}

func datasetGenePresenceHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	raw := geneParam(r)
	idx, convErr := strconv.Atoi(raw)
	if convErr != nil {
		var ok bool
		idx, ok = svc.LookupGene(raw)
		if !ok {
			http.Error(w, "gene not found: "+raw, http.StatusNotFound)
			return
		}
	}

	presence, err := svc.Presence(idx)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, pav.ErrUnsupported) {
			status = http.StatusNotImplemented
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, presence)
}

// pipelineArtifactHandler serves one raw pipeline artifact, 404 when the
// dataset ships without it.
func pipelineArtifactHandler(read func(*service.ViewerService) json.RawMessage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := getDatasetService(r)
		if svc == nil {
			http.Error(w, "dataset service not found", http.StatusInternalServerError)
			return
		}

		data := read(svc)
		if data == nil {
			http.Error(w, "artifact not available for this dataset", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func datasetReactionColoringHandler(w http.ResponseWriter, r *http.Request) {
	svc := getDatasetService(r)
	if svc == nil {
		http.Error(w, "dataset service not found", http.StatusInternalServerError)
		return
	}

	metric := strings.TrimSpace(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = "conservation"
	}

	data, err := svc.ReactionColoringJSON(metric)
	if err != nil {
		status := http.StatusNotFound
		if strings.Contains(err.Error(), "unknown coloring metric") {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// Session handlers

func sessionCreateHandler(sessions *service.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc := getDatasetService(r)
		if svc == nil {
			http.Error(w, "dataset service not found", http.StatusInternalServerError)
			return
		}

		sess := sessions.Create(svc)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(sess.State())
	}
}

func sessionStateHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}
	writeJSON(w, sess.State())
}

func sessionZoomHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}

	var req struct {
		Factor float64 `json:"factor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, sess.SetZoom(req.Factor))
}

func sessionScrollHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}

	var req struct {
		Start int `json:"start"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, sess.ScrollTo(req.Start))
}

func sessionMinimapClickHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}

	var req struct {
		X int `json:"x"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, sess.CenterOnMinimap(req.X))
}

func sessionSortHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}

	var req struct {
		Track     string `json:"track"`
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	state, err := sess.SortBy(req.Track, req.Direction)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, state)
}

func sessionSortResetHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}
	writeJSON(w, sess.ResetOrder())
}

func sessionViewResetHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}
	writeJSON(w, sess.ResetView())
}

func sessionToggleTrackHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}

	state, err := sess.ToggleTrack(chi.URLParam(r, "track"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, state)
}

func sessionSearchHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, sess.SetQuery(req.Query))
}

func sessionHeatmapHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}

	data, err := sess.HeatmapPNG()
	if err != nil {
		http.Error(w, "render failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	// Frames change with every interaction; the server-side cache does the
	// deduplication.
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func sessionMinimapHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}

	data, err := sess.MinimapPNG()
	if err != nil {
		http.Error(w, "render failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

func sessionHitHandler(w http.ResponseWriter, r *http.Request) {
	sess := getSession(r)
	if sess == nil {
		http.Error(w, "session not available", http.StatusInternalServerError)
		return
	}

	x, errX := strconv.Atoi(r.URL.Query().Get("x"))
	y, errY := strconv.Atoi(r.URL.Query().Get("y"))
	if errX != nil || errY != nil {
		http.Error(w, "x and y query params must be integers", http.StatusBadRequest)
		return
	}

	// Out-of-bounds pixels are a null hit, not an error.
	var payload struct {
		Hit *hittest.Hit `json:"hit"`
	}
	if hit, ok := sess.Hit(x, y); ok {
		payload.Hit = &hit
	}
	writeJSON(w, payload)
}

func sessionDeleteHandler(sessions *service.SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := getSession(r)
		if sess == nil {
			http.Error(w, "session not available", http.StatusInternalServerError)
			return
		}

		sessions.Delete(sess.ID)
		writeJSON(w, map[string]interface{}{
			"session": sess.ID,
			"deleted": true,
		})
	}
}

// Export job handlers

type exportSubmitRequest struct {
	Format    string `json:"format"`
	Width     int    `json:"width"`
	RowHeight int    `json:"row_height"`
}

func sessionExportHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		sess := getSession(r)
		if sess == nil {
			http.Error(w, "session not available", http.StatusInternalServerError)
			return
		}

		var req exportSubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if req.Format != "png" && req.Format != "csv" {
			http.Error(w, "format must be png or csv", http.StatusBadRequest)
			return
		}

		snap := sess.Snapshot()
		job, err := jm.Submit(jobstore.ExportParams{
			DatasetID:     snap.Dataset,
			Format:        req.Format,
			Width:         req.Width,
			RowHeight:     req.RowHeight,
			TrackIDs:      snap.TrackIDs,
			SortTrack:     snap.SortTrack,
			SortDirection: snap.SortDir,
		})
		if err != nil {
			http.Error(w, "failed to submit job: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"job_id": job.ID,
			"status": job.Status,
		})
	}
}

func exportStatusHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		jobID := chi.URLParam(r, "job_id")
		job := jm.Get(jobID)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		writeJSON(w, map[string]interface{}{
			"job_id":      job.ID,
			"dataset":     job.DatasetID,
			"status":      job.Status,
			"params":      job.Params,
			"created_at":  job.CreatedAt,
			"started_at":  job.StartedAt,
			"finished_at": job.FinishedAt,
			"error":       job.Error,
		})
	}
}

func exportResultHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		jobID := chi.URLParam(r, "job_id")
		job := jm.Get(jobID)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		if job.Status != jobstore.JobStatusCompleted {
			http.Error(w, "job not completed (status: "+string(job.Status)+")", http.StatusBadRequest)
			return
		}

		data, contentType, err := jm.Store().GetResult(jobID)
		if err != nil {
			http.Error(w, "failed to read result: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if data == nil {
			http.Error(w, "result not found", http.StatusNotFound)
			return
		}

		filename := "export-" + job.ID
		if len(job.ID) >= 8 {
			filename = "export-" + job.ID[:8]
		}
		switch contentType {
		case "text/csv":
			filename += ".csv"
		case "image/png":
			filename += ".png"
		}
		disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
		if disposition != "" {
			w.Header().Set("Content-Disposition", disposition)
		} else {
			w.Header().Set("Content-Disposition", "attachment")
		}
		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	}
}

func exportCancelHandler(jm *JobManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jm == nil {
			http.Error(w, "job manager not configured", http.StatusNotImplemented)
			return
		}

		jobID := chi.URLParam(r, "job_id")
		job := jm.Get(jobID)
		if job == nil {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}

		jm.Cancel(jobID)

		writeJSON(w, map[string]interface{}{
			"job_id":    jobID,
			"cancelled": true,
		})
	}
}
