package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/progress"
	"github.com/JakeFAU/hadith-ingest/internal/storage/memory"
	"github.com/JakeFAU/hadith-ingest/internal/store"
)

// ExampleRunHandler_ListRuns shows how to serve the /v1/runs endpoint.
func ExampleRunHandler_ListRuns() {
	runs := memory.NewRunStore()
	id := uuid.MustParse("00000000-0000-7000-8000-0000000000aa")
	started := time.Unix(0, 0)
	_ = runs.StartRun(context.Background(), id, "bukhari", started)
	_ = runs.CompleteRun(context.Background(), id, started.Add(time.Minute), store.RunSuccess, nil)
	handler := NewRunHandler(runs, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/runs?limit=1", nil)
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, req)

	var payload struct {
		Runs []map[string]any `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		panic(err)
	}
	fmt.Printf("returned runs: %d, status: %v\n", len(payload.Runs), payload.Runs[0]["status"])
	// Output:
	// returned runs: 1, status: success
}

// ExampleProgressHandler_Get polls one collection's live progress.
func ExampleProgressHandler_Get() {
	reg := progress.NewRegistry(progress.RegistryConfig{})
	tr := reg.Begin("muslim", uuid.MustParse("00000000-0000-7000-8000-0000000000bb"))
	tr.SetSections(56)
	handler := NewProgressHandler(reg, StreamConfig{}, nil)

	rec := httptest.NewRecorder()
	handler.Get(rec, withParam(httptest.NewRequest(http.MethodGet, "/v1/progress/muslim", nil), "slug", "muslim"))

	var snap progress.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		panic(err)
	}
	fmt.Println(snap.Phase, snap.SectionsTotal)
	// Output:
	// fetching 56
}
