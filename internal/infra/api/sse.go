// File: internal/infra/api/sse.go
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Alterya/agents-sub000/internal/domain/model"
	"github.com/Alterya/agents-sub000/internal/infra/logging"
)

// Per-subscriber buffer. A client that cannot keep up loses intermediate
// snapshots but always gets the terminal one because the terminal update is
// the last event and the drain loop keeps running.
const streamBuffer = 8

// handleStreamJob streams job status snapshots as SSE. The current snapshot
// is sent first so late subscribers never miss the terminal state; the
// stream always closes with a done terminator. Unknown ids get the
// terminator immediately (the job may have been evicted already).
func (s *Server) handleStreamJob(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	id := chi.URLParam(r, "id")
	log := logging.With(logging.WithJobID(r.Context(), id), s.log)

	// Subscribe before reading the snapshot so no update can fall between
	// the two.
	updates := make(chan model.Job, streamBuffer)
	unsubscribe := s.registry.Subscribe(id, func(j model.Job) {
		select {
		case updates <- j:
		default:
			// Slow client; skip this snapshot rather than block the registry.
		}
	})
	defer unsubscribe()

	job, err := s.registry.Get(id)
	if err != nil {
		writeDone(w, flusher)
		return
	}

	writeStatus(w, flusher, job)
	if job.Status.Terminal() {
		writeDone(w, flusher)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			log.Debug().Msg("stream client disconnected")
			return
		case j := <-updates:
			writeStatus(w, flusher, j)
			if j.Status.Terminal() {
				writeDone(w, flusher)
				return
			}
		}
	}
}

func writeStatus(w http.ResponseWriter, flusher http.Flusher, job model.Job) {
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
	flusher.Flush()
}

func writeDone(w http.ResponseWriter, flusher http.Flusher) {
	fmt.Fprint(w, "event: done\ndata: [DONE]\n\n")
	flusher.Flush()
}
