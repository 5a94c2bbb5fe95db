// Package api exposes the ingestion pipeline over HTTP: the storage-event
// endpoint the delivery system pushes to, and a small read-only asset status
// API for client surfaces.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/media-ingest/pkg/mediaingest"
	"github.com/tendant/media-ingest/pkg/mediaingest/envelope"
	"github.com/tendant/media-ingest/pkg/mediaingest/rawpath"
)

// maxEventBody bounds how much of a pushed event is read.
const maxEventBody = 1 << 20

// EventsHandler normalizes storage events and dispatches encode jobs.
type EventsHandler struct {
	store        mediaingest.StatusStore
	dispatcher   mediaingest.Dispatcher
	mediaPrefix  string
	rawBucket    string
	outputBucket string
	logger       *slog.Logger
	now          func() time.Time
}

// EventsConfig carries the filter and dispatch targets for the event endpoint.
type EventsConfig struct {
	// MediaTypePrefix is the content-type prefix ingested events must carry.
	MediaTypePrefix string
	// RawBucket is the only bucket whose events are acted on.
	RawBucket string
	// OutputBucket is handed to the encode job as its destination.
	OutputBucket string
}

func NewEventsHandler(store mediaingest.StatusStore, dispatcher mediaingest.Dispatcher, cfg EventsConfig) *EventsHandler {
	return &EventsHandler{
		store:        store,
		dispatcher:   dispatcher,
		mediaPrefix:  cfg.MediaTypePrefix,
		rawBucket:    cfg.RawBucket,
		outputBucket: cfg.OutputBucket,
		logger:       slog.Default(),
		now:          time.Now,
	}
}

// Routes returns the router for the event endpoint.
func (h *EventsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/storage", h.HandleStorageEvent)
	return r
}

// eventAck is the response to the delivery system. Handled distinguishes a
// dispatched event from a filtered no-op; both acknowledge the delivery.
type eventAck struct {
	Handled   bool   `json:"handled"`
	Reason    string `json:"reason,omitempty"`
	Operation string `json:"operation,omitempty"`
}

// HandleStorageEvent accepts one pushed storage event. Responses follow the
// delivery contract: 200 acknowledges (handled or deliberately ignored), 400
// marks the envelope malformed so it is never redelivered, and 5xx asks for
// redelivery. The merge write and the dispatch are both idempotent, so a
// redelivered event converges on the same record and at worst runs a
// duplicate encode of the same raw object.
func (h *EventsHandler) HandleStorageEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		http.Error(w, "failed to read event body", http.StatusBadRequest)
		return
	}

	event, shape, err := envelope.Decode(body)
	if err != nil {
		h.logger.Warn("unrecognized event envelope", "err", err, "bytes", len(body))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if reason, ok := h.filter(event); !ok {
		h.logger.Info("ignoring storage event",
			"reason", reason, "bucket", event.Bucket, "name", event.Name, "shape", shape)
		render.JSON(w, r, eventAck{Handled: false, Reason: reason})
		return
	}

	ref, ok := rawpath.Resolve(event.Name)
	if !ok {
		h.logger.Info("ignoring storage event", "reason", "unresolvable key", "name", event.Name)
		render.JSON(w, r, eventAck{Handled: false, Reason: "unresolvable key"})
		return
	}

	// Best-effort merge: a failed status write must not block the dispatch,
	// the record converges on the next delivery or the next writer.
	now := h.now()
	_, err = h.store.Apply(r.Context(), ref.OwnerID, ref.AssetID, mediaingest.StatusPatch{
		Status:   mediaingest.StatusPtr(mediaingest.StatusQueued),
		QueuedAt: mediaingest.TimePtr(now),
	})
	if err != nil {
		h.logger.Error("failed to mark asset queued",
			"err", err, "owner_id", ref.OwnerID, "asset_id", ref.AssetID)
	}

	op, err := h.dispatcher.Run(r.Context(), mediaingest.RunInput{
		RawBucket:    event.Bucket,
		RawObject:    event.Name,
		OutputBucket: h.outputBucket,
	})
	if err != nil {
		h.logger.Error("failed to dispatch encode job",
			"err", err, "owner_id", ref.OwnerID, "asset_id", ref.AssetID, "name", event.Name)
		http.Error(w, "dispatch failed", http.StatusBadGateway)
		return
	}

	h.logger.Info("storage event handled",
		"owner_id", ref.OwnerID, "asset_id", ref.AssetID, "operation", op, "shape", shape)
	render.JSON(w, r, eventAck{Handled: true, Operation: op})
}

// filter reports whether the event is one this pipeline ingests. The reason
// names the first failing condition.
func (h *EventsHandler) filter(event envelope.StorageEvent) (string, bool) {
	if !strings.HasPrefix(event.ContentType, h.mediaPrefix) {
		return "content type not ingested", false
	}
	if event.Bucket != h.rawBucket {
		return "foreign bucket", false
	}
	if !strings.HasPrefix(event.Name, rawpath.Prefix) {
		return "outside raw prefix", false
	}
	return "", true
}

// notFound maps store lookups to API status codes.
func notFound(err error) bool {
	return errors.Is(err, mediaingest.ErrAssetNotFound)
}
