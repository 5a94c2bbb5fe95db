package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// AssetsHandler serves the read-only asset status API.
type AssetsHandler struct {
	store  mediaingest.StatusStore
	logger *slog.Logger
}

func NewAssetsHandler(store mediaingest.StatusStore) *AssetsHandler {
	return &AssetsHandler{store: store, logger: slog.Default()}
}

// Routes returns the router for asset status endpoints.
func (h *AssetsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{owner_id}", h.ListAssets)
	r.Get("/{owner_id}/{asset_id}", h.GetAsset)
	return r
}

type listAssetsResponse struct {
	Assets []*mediaingest.AssetStatus `json:"assets"`
}

// ListAssets returns the owner's status records, newest first.
func (h *AssetsHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner_id")
	if ownerID == "" {
		http.Error(w, "owner id is required", http.StatusBadRequest)
		return
	}

	recs, err := h.store.List(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to list assets", "err", err, "owner_id", ownerID)
		http.Error(w, "failed to list assets", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []*mediaingest.AssetStatus{}
	}
	render.JSON(w, r, listAssetsResponse{Assets: recs})
}

// GetAsset returns one status record.
func (h *AssetsHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "owner_id")
	assetID := chi.URLParam(r, "asset_id")

	rec, err := h.store.Get(r.Context(), ownerID, assetID)
	if err != nil {
		if notFound(err) {
			http.Error(w, "asset not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get asset", "err", err, "owner_id", ownerID, "asset_id", assetID)
		http.Error(w, "failed to get asset", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, rec)
}
