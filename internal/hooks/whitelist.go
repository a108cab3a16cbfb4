package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

// ErrOnlyFundAdmin guards whitelist mutation.
var ErrOnlyFundAdmin = shared.Authorization("hooks: only the fund may change whitelists")

// WhitelistStore persists per-validator approved address sets. Namespaces
// keep each validator's whitelist (and auxiliary sets such as approved
// spenders) disjoint. Absent means rejected.
type WhitelistStore interface {
	Enable(ctx context.Context, namespace string, addr common.Address) error
	Disable(ctx context.Context, namespace string, addr common.Address) error
	Contains(ctx context.Context, namespace string, addr common.Address) (bool, error)
}

type pgWhitelist struct {
	db *pgxpool.Pool
}

// NewWhitelistStore returns the postgres-backed whitelist.
func NewWhitelistStore(db *pgxpool.Pool) WhitelistStore {
	return &pgWhitelist{db: db}
}

func (s *pgWhitelist) Enable(ctx context.Context, namespace string, addr common.Address) error {
	_, err := s.db.Exec(ctx, `INSERT INTO hook_whitelist (namespace, addr) VALUES ($1, $2)
ON CONFLICT (namespace, addr) DO NOTHING`, namespace, addr.Bytes())
	return err
}

func (s *pgWhitelist) Disable(ctx context.Context, namespace string, addr common.Address) error {
	_, err := s.db.Exec(ctx, `DELETE FROM hook_whitelist WHERE namespace=$1 AND addr=$2`, namespace, addr.Bytes())
	return err
}

func (s *pgWhitelist) Contains(ctx context.Context, namespace string, addr common.Address) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM hook_whitelist WHERE namespace=$1 AND addr=$2)`,
		namespace, addr.Bytes()).Scan(&exists)
	return exists, err
}

// MemoryWhitelist is an in-process WhitelistStore for tests.
type MemoryWhitelist struct {
	mu   sync.Mutex
	sets map[string]map[common.Address]bool
}

// NewMemoryWhitelist returns an empty MemoryWhitelist.
func NewMemoryWhitelist() *MemoryWhitelist {
	return &MemoryWhitelist{sets: make(map[string]map[common.Address]bool)}
}

// Enable implements WhitelistStore.
func (s *MemoryWhitelist) Enable(_ context.Context, namespace string, addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sets[namespace] == nil {
		s.sets[namespace] = make(map[common.Address]bool)
	}
	s.sets[namespace][addr] = true
	return nil
}

// Disable implements WhitelistStore.
func (s *MemoryWhitelist) Disable(_ context.Context, namespace string, addr common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets[namespace], addr)
	return nil
}

// Contains implements WhitelistStore.
func (s *MemoryWhitelist) Contains(_ context.Context, namespace string, addr common.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[namespace][addr], nil
}

// AdminService exposes fund-only, idempotent whitelist toggles. Disabling an
// asset blocks new positions only; wind-down behaviour is decided per
// validator.
type AdminService struct {
	store  WhitelistStore
	fund   common.Address
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// AuditPort records whitelist mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NewAdminService wires the whitelist admin service.
func NewAdminService(store WhitelistStore, fund common.Address, audit AuditPort, logger *slog.Logger) *AdminService {
	return &AdminService{store: store, fund: fund, audit: audit, logger: logger, now: time.Now}
}

// EnableAsset adds an asset to a validator's whitelist.
func (s *AdminService) EnableAsset(ctx context.Context, caller common.Address, namespace string, asset common.Address) error {
	if caller != s.fund {
		return ErrOnlyFundAdmin
	}
	if err := s.store.Enable(ctx, namespace, asset); err != nil {
		return err
	}
	s.record(ctx, caller, "hooks.enable_asset", namespace, asset)
	return nil
}

// DisableAsset removes an asset from a validator's whitelist.
func (s *AdminService) DisableAsset(ctx context.Context, caller common.Address, namespace string, asset common.Address) error {
	if caller != s.fund {
		return ErrOnlyFundAdmin
	}
	if err := s.store.Disable(ctx, namespace, asset); err != nil {
		return err
	}
	s.record(ctx, caller, "hooks.disable_asset", namespace, asset)
	return nil
}

func (s *AdminService) record(ctx context.Context, actor common.Address, action, namespace string, asset common.Address) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor.Hex(),
		Action:   action,
		Entity:   "hook_whitelist",
		EntityID: namespace + ":" + asset.Hex(),
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}
