package hooks

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/vaultgate-labs/vaultgate/internal/platform/httpx"
	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// Handler exposes whitelist administration over HTTP.
type Handler struct {
	admin      *AdminService
	namespaces map[string]bool
	logger     *slog.Logger
}

// NewHandler constructs the hooks admin handler. Only the supplied namespaces
// are addressable; anything else is rejected before touching the store.
func NewHandler(admin *AdminService, namespaces []string, logger *slog.Logger) *Handler {
	known := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		known[ns] = true
	}
	return &Handler{admin: admin, namespaces: known, logger: logger}
}

// MountRoutes attaches whitelist admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{validator}/assets/{asset}/enable", h.enable)
	r.Post("/{validator}/assets/{asset}/disable", h.disable)
}

func (h *Handler) enable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.admin.EnableAsset)
}

func (h *Handler) disable(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.admin.DisableAsset)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, fn func(context.Context, common.Address, string, common.Address) error) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, ErrOnlyFundAdmin)
		return
	}
	namespace := chi.URLParam(r, "validator")
	if !h.namespaces[namespace] {
		httpx.RespondError(w, ErrUnknownValidator)
		return
	}
	asset := chi.URLParam(r, "asset")
	if !common.IsHexAddress(asset) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "asset must be a hex address")
		return
	}
	if err := fn(r.Context(), principal.Address, namespace, common.HexToAddress(asset)); err != nil {
		h.logger.Error("whitelist toggle", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
