package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/merkelview/merkel-server/internal/geo"
	"github.com/merkelview/merkel-server/internal/logger"
	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/service"
)

// StreamHandler pushes live location snapshots to the client as
// server-sent events. Opening the stream replaces any previous live
// subscription, so at most one is active.
type StreamHandler struct {
	feed    *service.Feed
	adapter *geo.MapAdapter
	logger  *logger.Logger
}

func NewStreamHandler(feed *service.Feed, adapter *geo.MapAdapter, log *logger.Logger) *StreamHandler {
	return &StreamHandler{feed: feed, adapter: adapter, logger: log}
}

type streamEnvelope struct {
	snapshot []model.Location
	err      error
}

// Stream serves the snapshot feed. Each event carries the full ordered
// list; record markers are refreshed from every snapshot before it is sent.
// GET /api/locations/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, model.NewValidationError("stream", "response writer does not support streaming"))
		return
	}

	events := make(chan streamEnvelope, 4)
	err := h.feed.Subscribe(r.Context(),
		func(snapshot []model.Location) {
			h.adapter.ApplySnapshot(snapshot)
			select {
			case events <- streamEnvelope{snapshot: snapshot}:
			default:
				h.logger.Warn("Location stream: dropping snapshot for slow client")
			}
		},
		func(err error) {
			select {
			case events <- streamEnvelope{err: err}:
			default:
			}
		},
	)
	if err != nil {
		writeError(w, model.NewPersistenceError("open live subscription", err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case envelope := <-events:
			if envelope.err != nil {
				writeSSE(w, flusher, "error", errorResponse{
					Code:    "FEED_RELOAD_FAILED",
					Message: envelope.err.Error(),
				})
				continue
			}
			out := make([]locationResponse, 0, len(envelope.snapshot))
			for _, loc := range envelope.snapshot {
				out = append(out, toLocationResponse(loc))
			}
			writeSSE(w, flusher, "snapshot", out)
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
