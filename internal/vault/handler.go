package vault

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vaultgate-labs/vaultgate/internal/epochs"
	"github.com/vaultgate-labs/vaultgate/internal/platform/httpx"
	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// FeeCollectionEnqueuer hands a fee-collection batch to the worker instead
// of running it on the request path.
type FeeCollectionEnqueuer interface {
	EnqueueFeeCollection(ctx context.Context, caller common.Address, epochID uint64, users []common.Address) error
}

type Handler struct {
	service  *Service
	epochs   *epochs.Service
	enqueue  FeeCollectionEnqueuer
	logger   *slog.Logger
	validate *validator.Validate
}

func NewHandler(service *Service, epochSvc *epochs.Service, enqueue FeeCollectionEnqueuer, logger *slog.Logger) *Handler {
	return &Handler{service: service, epochs: epochSvc, enqueue: enqueue, logger: logger, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/accounts", h.openAccount)
	r.Get("/accounts/{addr}", h.getAccount)
	r.Post("/accounts/{addr}/pause", h.pauseAccount)
	r.Post("/accounts/{addr}/unpause", h.unpauseAccount)
	r.Post("/deposit", h.deposit)
	r.Post("/withdraw", h.withdraw)
	r.Post("/epochs", h.startEpoch)
	r.Get("/epochs/active", h.activeEpoch)
	r.Post("/fees/collect", h.collectFees)
	r.Post("/fees/withdraw", h.withdrawFee)
	r.Get("/convert", h.convert)
}

type openAccountRequest struct {
	User string `json:"user" validate:"required"`
	Role uint8  `json:"role" validate:"lte=2"`
}

func (h *Handler) openAccount(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, ErrOnlyFund)
		return
	}
	var req openAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if !common.IsHexAddress(req.User) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "user must be a hex address")
		return
	}
	err := h.service.OpenAccount(r.Context(), principal.Address, common.HexToAddress(req.User), Role(req.Role))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	if !common.IsHexAddress(addr) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "addr must be a hex address")
		return
	}
	account, err := h.service.Account(r.Context(), common.HexToAddress(addr))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"address":      account.Address.Hex(),
		"role":         uint8(account.Role),
		"status":       uint8(account.Status),
		"nonce":        account.Nonce,
		"depositValue": account.DepositValue.String(),
		"currentEpoch": account.CurrentEpoch,
	})
}

func (h *Handler) pauseAccount(w http.ResponseWriter, r *http.Request) {
	h.accountStatus(w, r, h.service.PauseAccount)
}

func (h *Handler) unpauseAccount(w http.ResponseWriter, r *http.Request) {
	h.accountStatus(w, r, h.service.UnpauseAccount)
}

func (h *Handler) accountStatus(w http.ResponseWriter, r *http.Request, fn func(context.Context, common.Address, common.Address) error) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, ErrOnlyFund)
		return
	}
	addr := chi.URLParam(r, "addr")
	if !common.IsHexAddress(addr) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "addr must be a hex address")
		return
	}
	if err := fn(r.Context(), principal.Address, common.HexToAddress(addr)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type intentRequest struct {
	User       string `json:"user" validate:"required"`
	Asset      string `json:"asset" validate:"required"`
	Amount     string `json:"amount" validate:"required"`
	Nonce      uint64 `json:"nonce"`
	Deadline   int64  `json:"deadline" validate:"required"`
	Limit      string `json:"limit"`
	RelayerTip string `json:"relayerTip"`
	Signature  string `json:"signature" validate:"required"`
}

func (req intentRequest) toIntent() (Intent, error) {
	if !common.IsHexAddress(req.User) || !common.IsHexAddress(req.Asset) {
		return Intent{}, shared.Intent("vault: user and asset must be hex addresses")
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return Intent{}, shared.Intent("vault: amount must be a decimal integer")
	}
	limit, ok := parseOptional(req.Limit)
	if !ok {
		return Intent{}, shared.Intent("vault: limit must be a decimal integer")
	}
	tip, ok := parseOptional(req.RelayerTip)
	if !ok {
		return Intent{}, shared.Intent("vault: relayerTip must be a decimal integer")
	}
	return Intent{
		User:       common.HexToAddress(req.User),
		Asset:      common.HexToAddress(req.Asset),
		Amount:     amount,
		Nonce:      req.Nonce,
		Deadline:   time.Unix(req.Deadline, 0).UTC(),
		Limit:      limit,
		RelayerTip: tip,
		Signature:  common.FromHex(req.Signature),
	}, nil
}

func parseOptional(s string) (*big.Int, bool) {
	if s == "" {
		return nil, true
	}
	return new(big.Int).SetString(s, 10)
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.service.Deposit, "minted")
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.service.Withdraw, "burned")
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, fn func(context.Context, Intent) (*big.Int, error), field string) {
	var req intentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	intent, err := req.toIntent()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	shares, err := fn(r.Context(), intent)
	if err != nil {
		h.logger.Warn("settle intent", slog.String("user", req.User), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{field: shares.String()})
}

type startEpochRequest struct {
	EndsAt int64 `json:"endsAt" validate:"required"`
}

func (h *Handler) startEpoch(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, epochs.ErrOnlyFund)
		return
	}
	var req startEpochRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	epoch, err := h.epochs.Start(r.Context(), principal.Address, time.Unix(req.EndsAt, 0).UTC())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": epoch.ID, "endsAt": epoch.EndsAt.Unix()})
}

func (h *Handler) activeEpoch(w http.ResponseWriter, r *http.Request) {
	epoch, err := h.epochs.Active(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": epoch.ID, "endsAt": epoch.EndsAt.Unix()})
}

type collectFeesRequest struct {
	EpochID uint64   `json:"epochId"`
	Users   []string `json:"users" validate:"required,min=1,dive,required"`
	Async   bool     `json:"async"`
}

func (h *Handler) collectFees(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, ErrOnlyFeeRecipient)
		return
	}
	var req collectFeesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	users := make([]common.Address, 0, len(req.Users))
	for _, u := range req.Users {
		if !common.IsHexAddress(u) {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "users must be hex addresses")
			return
		}
		users = append(users, common.HexToAddress(u))
	}
	if req.Async && h.enqueue != nil {
		if err := h.enqueue.EnqueueFeeCollection(r.Context(), principal.Address, req.EpochID, users); err != nil {
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	collected, err := h.service.CollectEpochFees(r.Context(), principal.Address, req.EpochID, users)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"feeValue": collected.String()})
}

type withdrawFeeRequest struct {
	Asset       string `json:"asset" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
	MaxSharesIn string `json:"maxSharesIn"`
}

func (h *Handler) withdrawFee(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, ErrOnlyFeeRecipient)
		return
	}
	var req withdrawFeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if !common.IsHexAddress(req.Asset) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "asset must be a hex address")
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "amount must be a decimal integer")
		return
	}
	maxShares, ok := parseOptional(req.MaxSharesIn)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "maxSharesIn must be a decimal integer")
		return
	}
	burned, err := h.service.WithdrawFee(r.Context(), principal.Address, common.HexToAddress(req.Asset), amount, maxShares)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"burned": burned.String()})
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("value"); raw != "" {
		value, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "value must be a decimal integer")
			return
		}
		shares, err := h.service.ConvertToShares(r.Context(), value)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"shares": shares.String()})
		return
	}
	if raw := r.URL.Query().Get("shares"); raw != "" {
		shares, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "shares must be a decimal integer")
			return
		}
		value, err := h.service.ConvertToAssets(r.Context(), shares)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"value": value.String()})
		return
	}
	httpx.Problem(w, http.StatusBadRequest, "Bad Request", "pass ?value= or ?shares=")
}
