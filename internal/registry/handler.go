package registry

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vaultgate-labs/vaultgate/internal/platform/httpx"
	"github.com/vaultgate-labs/vaultgate/internal/safe"
	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// Handler exposes the registry over HTTP.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the registry handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes attaches registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/hooks", h.getHooks)
	r.Post("/hooks", h.setHooks)
	r.Delete("/hooks", h.unsetHooks)
}

type bindingKeyRequest struct {
	Operator  string `json:"operator" validate:"required"`
	Target    string `json:"target" validate:"required"`
	Operation uint8  `json:"operation" validate:"lte=1"`
	Selector  string `json:"selector" validate:"required"`
}

type setHooksRequest struct {
	bindingKeyRequest
	Before string `json:"before" validate:"required"`
	After  string `json:"after"`
}

type bindingResponse struct {
	Operator  string `json:"operator"`
	Target    string `json:"target"`
	Operation uint8  `json:"operation"`
	Selector  string `json:"selector"`
	Before    string `json:"before,omitempty"`
	After     string `json:"after,omitempty"`
	Defined   bool   `json:"defined"`
}

func (req bindingKeyRequest) key() (BindingKey, error) {
	if !common.IsHexAddress(req.Operator) || !common.IsHexAddress(req.Target) {
		return BindingKey{}, ErrInvalidBinding
	}
	sel := common.FromHex(req.Selector)
	if len(sel) != 4 {
		return BindingKey{}, ErrInvalidBinding
	}
	return BindingKey{
		Operator:  common.HexToAddress(req.Operator),
		Target:    common.HexToAddress(req.Target),
		Operation: safe.Operation(req.Operation),
		Selector:  safe.SelectorFromBytes(sel),
	}, nil
}

func (h *Handler) getHooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := bindingKeyRequest{
		Operator: q.Get("operator"),
		Target:   q.Get("target"),
		Selector: q.Get("selector"),
	}
	if q.Get("operation") == "1" {
		req.Operation = 1
	}
	key, err := req.key()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	binding, err := h.service.GetHooks(r.Context(), key)
	if err != nil {
		h.logger.Error("get hooks", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBindingResponse(binding))
}

func (h *Handler) setHooks(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, ErrOnlyFund)
		return
	}
	var req setHooksRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	key, err := req.key()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	binding := HookBinding{
		BindingKey: key,
		Before:     common.HexToAddress(req.Before),
		After:      common.HexToAddress(req.After),
	}
	if err := h.service.SetHooks(r.Context(), principal.Address, binding); err != nil {
		httpx.RespondError(w, err)
		return
	}
	binding.Defined = true
	httpx.JSON(w, http.StatusCreated, toBindingResponse(binding))
}

func (h *Handler) unsetHooks(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, ErrOnlyFund)
		return
	}
	var req bindingKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	key, err := req.key()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.UnsetHooks(r.Context(), principal.Address, key); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toBindingResponse(b HookBinding) bindingResponse {
	resp := bindingResponse{
		Operator:  b.Operator.Hex(),
		Target:    b.Target.Hex(),
		Operation: uint8(b.Operation),
		Selector:  "0x" + b.Selector.Hex(),
		Defined:   b.Defined,
	}
	if b.Defined {
		resp.Before = b.Before.Hex()
		if b.HasAfter() {
			resp.After = b.After.Hex()
		}
	}
	return resp
}
