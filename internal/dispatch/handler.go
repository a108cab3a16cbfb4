package dispatch

import (
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"

	"github.com/vaultgate-labs/vaultgate/internal/platform/httpx"
	"github.com/vaultgate-labs/vaultgate/internal/safe"
	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// Handler exposes the dispatcher over HTTP.
type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

// NewHandler constructs the dispatch handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

// MountRoutes attaches dispatcher routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/execute", h.execute)
	r.Post("/pause", h.pause)
	r.Post("/unpause", h.unpause)
	r.Put("/gas-cap", h.setGasCap)
	r.Get("/config", h.getConfig)
}

type callRequest struct {
	Target    string `json:"target" validate:"required"`
	Operation uint8  `json:"operation" validate:"lte=1"`
	Value     string `json:"value"`
	Selector  string `json:"selector" validate:"required"`
	Data      string `json:"data"`
}

type executeRequest struct {
	Transactions []callRequest `json:"transactions" validate:"required,dive"`
	GasPrice     string        `json:"gasPrice"`
	BaseFee      string        `json:"baseFee"`
}

type resultResponse struct {
	Return  string `json:"return"`
	GasUsed uint64 `json:"gasUsed"`
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "operator signature required")
		return
	}
	var req executeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	batch := make([]safe.Call, 0, len(req.Transactions))
	for _, tx := range req.Transactions {
		call, err := tx.toCall()
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		batch = append(batch, call)
	}
	gas, err := parseGas(req.GasPrice, req.BaseFee)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	results, err := h.service.Execute(r.Context(), principal.Address, batch, gas)
	if err != nil {
		h.logger.Warn("execute batch", slog.String("operator", principal.Address.Hex()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]resultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, resultResponse{Return: hexutil.Encode(res.Return), GasUsed: res.GasUsed})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	h.admin(w, r, func(caller common.Address) error {
		return h.service.Pause(r.Context(), caller)
	})
}

func (h *Handler) unpause(w http.ResponseWriter, r *http.Request) {
	h.admin(w, r, func(caller common.Address) error {
		return h.service.Unpause(r.Context(), caller)
	})
}

func (h *Handler) setGasCap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaxGasPriorityBps uint32 `json:"maxGasPriorityBps" validate:"lte=10000"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.admin(w, r, func(caller common.Address) error {
		return h.service.SetMaxGasPriorityBps(r.Context(), caller, req.MaxGasPriorityBps)
	})
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.GetConfig(r.Context())
	if err != nil {
		h.logger.Error("get dispatch config", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"paused":            cfg.Paused,
		"maxGasPriorityBps": cfg.MaxGasPriorityBps,
	})
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request, fn func(common.Address) error) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, ErrOnlyFund)
		return
	}
	if err := fn(principal.Address); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req callRequest) toCall() (safe.Call, error) {
	if !common.IsHexAddress(req.Target) {
		return safe.Call{}, shared.Intent("dispatch: target must be a hex address")
	}
	sel := common.FromHex(req.Selector)
	if len(sel) != 4 {
		return safe.Call{}, shared.Intent("dispatch: selector must be four bytes")
	}
	value := new(big.Int)
	if req.Value != "" {
		if _, ok := value.SetString(req.Value, 10); !ok {
			return safe.Call{}, shared.Intent("dispatch: value must be a decimal integer")
		}
	}
	return safe.Call{
		Target:    common.HexToAddress(req.Target),
		Operation: safe.Operation(req.Operation),
		Value:     value,
		Selector:  safe.SelectorFromBytes(sel),
		Args:      common.FromHex(req.Data),
	}, nil
}

func parseGas(gasPrice, baseFee string) (GasContext, error) {
	gas := GasContext{GasPrice: new(uint256.Int), BaseFee: new(uint256.Int)}
	if gasPrice != "" {
		if err := gas.GasPrice.SetFromDecimal(gasPrice); err != nil {
			return GasContext{}, shared.Intent("dispatch: gasPrice must be a decimal integer")
		}
	}
	if baseFee != "" {
		if err := gas.BaseFee.SetFromDecimal(baseFee); err != nil {
			return GasContext{}, shared.Intent("dispatch: baseFee must be a decimal integer")
		}
	}
	return gas, nil
}
