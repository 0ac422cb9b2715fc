// Command statusapi serves a read-only HTTP view of a running
// orchestrator's node snapshot, for dashboards and postmortem tooling
// that should not need broker access of their own. It runs as a
// separate process from cmd/orchestrator and has no memory shared with
// it, so it reads the same snapshot file cmd/orchestrator writes out
// periodically rather than holding a live reference to it.
//
// # Configuration
//
// Environment variables:
//
//	STATUSAPI_ADDR - HTTP listen address (default: ":8090")
//	SNAPSHOT_PATH  - path to the node snapshot written by cmd/orchestrator (default: "./snapshot.json")
//
// # Routes
//
//	GET /healthz        - liveness check
//	GET /nodes          - every node's current state
//	GET /nodes/{id}     - a single node's current state
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hdlmesh/taskmesh/internal/config"
	"github.com/hdlmesh/taskmesh/internal/orchestrator"
)

// server reads the orchestrator's snapshot file fresh on every request,
// so it always reflects the most recent write without caching staleness.
type server struct {
	snapshotPath string
}

func (s *server) readSnapshot() (orchestrator.Snapshot, error) {
	var snap orchestrator.Snapshot
	data, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, err
	}
	return snap, nil
}

func main() {
	config.Load()
	addr := envOr("STATUSAPI_ADDR", ":8090")

	srv := &server{snapshotPath: config.SnapshotPathFromEnv()}
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/nodes", srv.handleListNodes)
	r.Get("/nodes/{id}", srv.handleGetNode)

	log.Printf("statusapi listening on %s, reading snapshot from %s", addr, srv.snapshotPath)
	log.Fatal(http.ListenAndServe(addr, r))
}

func (s *server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	snap, err := s.readSnapshot()
	if err != nil {
		http.Error(w, "snapshot unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

func (s *server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.readSnapshot()
	if err != nil {
		http.Error(w, "snapshot unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	node, ok := snap.Nodes[id]
	if !ok {
		http.Error(w, "node not found", http.StatusNotFound)
		return
	}
	writeJSON(w, node)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
