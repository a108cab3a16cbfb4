package assets

import (
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vaultgate-labs/vaultgate/internal/platform/httpx"
	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

type Handler struct {
	service  *Service
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{asset}", h.get)
	r.Put("/{asset}", h.put)
}

type policyRequest struct {
	Enabled              bool   `json:"enabled"`
	CanDeposit           bool   `json:"canDeposit"`
	CanWithdraw          bool   `json:"canWithdraw"`
	Permissioned         bool   `json:"permissioned"`
	MinNominalDeposit    string `json:"minNominalDeposit"`
	MinNominalWithdrawal string `json:"minNominalWithdrawal"`
}

type policyResponse struct {
	Asset string `json:"asset"`
	policyRequest
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	asset := chi.URLParam(r, "asset")
	if !common.IsHexAddress(asset) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "asset must be a hex address")
		return
	}
	policy, err := h.service.Get(r.Context(), common.HexToAddress(asset))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, policyResponse{
		Asset: policy.Asset.Hex(),
		policyRequest: policyRequest{
			Enabled:              policy.Enabled,
			CanDeposit:           policy.CanDeposit,
			CanWithdraw:          policy.CanWithdraw,
			Permissioned:         policy.Permissioned,
			MinNominalDeposit:    policy.MinNominalDeposit.String(),
			MinNominalWithdrawal: policy.MinNominalWithdrawal.String(),
		},
	})
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, ErrOnlyFund)
		return
	}
	asset := chi.URLParam(r, "asset")
	if !common.IsHexAddress(asset) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "asset must be a hex address")
		return
	}
	var req policyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	minDeposit, ok1 := parseAmount(req.MinNominalDeposit)
	minWithdrawal, ok2 := parseAmount(req.MinNominalWithdrawal)
	if !ok1 || !ok2 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "minimums must be decimal integers")
		return
	}
	policy := Policy{
		Asset:                common.HexToAddress(asset),
		Enabled:              req.Enabled,
		CanDeposit:           req.CanDeposit,
		CanWithdraw:          req.CanWithdraw,
		Permissioned:         req.Permissioned,
		MinNominalDeposit:    minDeposit,
		MinNominalWithdrawal: minWithdrawal,
	}
	if err := h.service.SetPolicy(r.Context(), principal.Address, policy); err != nil {
		h.logger.Warn("set asset policy", slog.String("asset", asset), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseAmount(s string) (*big.Int, bool) {
	if s == "" {
		return new(big.Int), true
	}
	return new(big.Int).SetString(s, 10)
}
