package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/heatview/server/internal/cache"
	"github.com/heatview/server/internal/minimap"
	"github.com/heatview/server/internal/render"
	"github.com/heatview/server/internal/service"
)

// TestTracksEndpoint_NoListen exercises the router directly through
// ServeHTTP, without binding a listener. Useful in sandboxes where opening
// sockets is not allowed.
func TestTracksEndpoint_NoListen(t *testing.T) {
	cacheManager, err := cache.NewManager(cache.Config{
		FrameCacheSizeMB: 4,
		FrameTTL:         time.Minute,
		QueryCacheSize:   16,
	})
	if err != nil {
		t.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	viewerService := service.NewViewerService(service.ViewerServiceConfig{
		DatasetID: "ecoli",
		Dataset:   testDataset(t),
		Cache:     cacheManager,
		Heatmap:   render.NewHeatmapRenderer(render.Config{SurfaceWidth: 200, RowHeight: 10}),
		Minimap:   minimap.NewRenderer(minimap.Config{Width: 100, Height: 40}),
	})

	registry := NewDatasetRegistry("ecoli", []string{"ecoli"}, "")
	registry.Register("ecoli", viewerService)

	sessions := service.NewSessionManager(time.Minute)
	defer sessions.Close()

	router := NewRouter(RouterConfig{
		Registry:    registry,
		CORSOrigins: []string{"http://localhost:3000"},
		Sessions:    sessions,
	})

	req := httptest.NewRequest(http.MethodGet, "/d/ecoli/api/tracks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	tracks, _ := payload["tracks"].([]any)
	if len(tracks) != 4 {
		t.Fatalf("unexpected track count: got %d want 4", len(tracks))
	}

	// An export submitted while no job manager is wired is a clear 501,
	// not a panic.
	createReq := httptest.NewRequest(http.MethodPost, "/d/ecoli/api/sessions", nil)
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusCreated {
		t.Fatalf("expected %d, got %d: %s", http.StatusCreated, createRec.Code, createRec.Body.String())
	}
	var state map[string]any
	if err := json.Unmarshal(createRec.Body.Bytes(), &state); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	sessionID, _ := state["session"].(string)

	exportReq := httptest.NewRequest(http.MethodPost, "/api/sessions/"+sessionID+"/export", nil)
	exportRec := httptest.NewRecorder()
	router.ServeHTTP(exportRec, exportReq)
	if exportRec.Code != http.StatusNotImplemented {
		t.Fatalf("expected %d, got %d: %s", http.StatusNotImplemented, exportRec.Code, exportRec.Body.String())
	}
}
