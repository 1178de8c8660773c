package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// Serves the same envelope the fulfillment API emits for the manual queue
// so the client-side decoding cannot drift from the server's shape.
func queueServer(t *testing.T, tasks []manualTask) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/fulfillment/manual/queue" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"pendingTasks": len(tasks),
			"tasks":        tasks,
		})
	}))
}

func testClient(srv *httptest.Server) *client {
	return &client{base: srv.URL, http: &http.Client{Timeout: 5 * time.Second}}
}

func TestQueueDecodesServerEnvelope(t *testing.T) {
	srv := queueServer(t, []manualTask{{
		TransactionID:  "txn-1",
		BuyerAgentID:   "buyer-1",
		ListingID:      "lst-1",
		ServiceName:    "Logo Design",
		SourcePlatform: "fiverr",
		SourceURL:      "https://fiverr.com/gigs/logo-design",
		SourcePrice:    "25.00",
		BuyerPaid:      "50.00",
		BuyerInput:     map[string]any{"brief": "minimal"},
		Instructions:   "MANUAL FULFILLMENT REQUIRED",
		CreatedAt:      "2025-06-01T12:00:00Z",
	}})
	defer srv.Close()

	tasks, err := testClient(srv).queue()
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}
	got := tasks[0]
	if got.TransactionID != "txn-1" || got.SourcePlatform != "fiverr" {
		t.Errorf("task = %+v", got)
	}
	if got.SourcePrice != "25.00" || got.BuyerPaid != "50.00" {
		t.Errorf("money fields = %s / %s", got.SourcePrice, got.BuyerPaid)
	}
	if got.BuyerInput["brief"] != "minimal" {
		t.Errorf("buyerInput = %v", got.BuyerInput)
	}
}

func TestQueueEmpty(t *testing.T) {
	srv := queueServer(t, nil)
	defer srv.Close()

	tasks, err := testClient(srv).queue()
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("tasks = %d, want 0", len(tasks))
	}
}

func TestGetReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"internal_error"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := testClient(srv).queue(); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestStatsDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/fulfillment/stats" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"totalFulfilled":2,"totalRevenue":"65","byPlatform":{"rapidapi":1,"fiverr":1},"pendingManual":1,"manualCompleted":1}`)
	}))
	defer srv.Close()

	var stats struct {
		TotalFulfilled  int64            `json:"totalFulfilled"`
		TotalRevenue    string           `json:"totalRevenue"`
		ByPlatform      map[string]int64 `json:"byPlatform"`
		PendingManual   int              `json:"pendingManual"`
		ManualCompleted int64            `json:"manualCompleted"`
	}
	if err := testClient(srv).get("/api/v1/fulfillment/stats", &stats); err != nil {
		t.Fatalf("get: %v", err)
	}
	if stats.TotalFulfilled != 2 || stats.TotalRevenue != "65" {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByPlatform["fiverr"] != 1 {
		t.Errorf("byPlatform = %v", stats.ByPlatform)
	}
}
