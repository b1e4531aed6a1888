package connect

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"event-settlement/internal/provider"
	"event-settlement/internal/status"
	"event-settlement/models"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "connect:snapshot:"

// Service keeps the local connect_accounts mirror in sync with the
// provider. Snapshots pass through a short-TTL read-through cache in
// Redis; the cache is never authoritative — it only bounds how often
// the provider is asked, and a webhook invalidates it eagerly.
type Service struct {
	db       dbx.Builder
	redis    *redis.Client
	provider provider.Client
	cacheTTL time.Duration
}

func NewService(db dbx.Builder, redisClient *redis.Client, providerClient provider.Client, cacheTTL time.Duration) *Service {
	return &Service{
		db:       db,
		redis:    redisClient,
		provider: providerClient,
		cacheTTL: cacheTTL,
	}
}

func (s *Service) GetByOrganizer(ctx context.Context, organizerID string) (*models.ConnectAccount, error) {
	var acct models.ConnectAccount
	err := s.db.NewQuery(
		"SELECT * FROM connect_accounts WHERE organizer_id = {:oid}",
	).Bind(dbx.Params{"oid": organizerID}).WithContext(ctx).One(&acct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "load connect account", err)
	}
	return &acct, nil
}

func (s *Service) getByProviderAccount(ctx context.Context, providerAccountID string) (*models.ConnectAccount, error) {
	var acct models.ConnectAccount
	err := s.db.NewQuery(
		"SELECT * FROM connect_accounts WHERE provider_account_id = {:pid}",
	).Bind(dbx.Params{"pid": providerAccountID}).WithContext(ctx).One(&acct)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrNotFound
	}
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "load connect account", err)
	}
	return &acct, nil
}

// Snapshot returns the provider view of the organizer's account,
// served from cache within the TTL. Pass fresh=true to bypass the
// cache; transfer-time gates always do.
func (s *Service) Snapshot(ctx context.Context, organizerID string, fresh bool) (*provider.AccountSnapshot, *models.ConnectAccount, error) {
	acct, err := s.GetByOrganizer(ctx, organizerID)
	if err != nil {
		return nil, nil, err
	}

	if !fresh {
		if snap := s.cachedSnapshot(ctx, acct.ProviderAccountID); snap != nil {
			return snap, acct, nil
		}
	}

	snap, err := s.provider.GetAccount(ctx, acct.ProviderAccountID)
	if err != nil {
		return nil, acct, err
	}

	if err := s.applySnapshot(ctx, acct, snap); err != nil {
		return nil, acct, err
	}
	s.cacheSnapshot(ctx, snap)
	return snap, acct, nil
}

// HandleAccountUpdated ingests an account.updated webhook snapshot:
// reclassify, persist, and drop the cache entry so the next read sees
// the new truth immediately.
func (s *Service) HandleAccountUpdated(ctx context.Context, snap *provider.AccountSnapshot) error {
	acct, err := s.getByProviderAccount(ctx, snap.AccountID)
	if errors.Is(err, status.ErrNotFound) {
		// Account we never onboarded; nothing to update.
		return nil
	}
	if err != nil {
		return err
	}

	s.redis.Del(ctx, cacheKeyPrefix+snap.AccountID)
	if err := s.applySnapshot(ctx, acct, snap); err != nil {
		return err
	}
	s.cacheSnapshot(ctx, snap)
	return nil
}

// GateForCheckout rejects new checkout sessions unless the account is
// verified with charges enabled. An account that silently became
// restricted must stop accepting payments within the cache TTL.
func (s *Service) GateForCheckout(ctx context.Context, organizerID string) error {
	snap, _, err := s.Snapshot(ctx, organizerID, false)
	if err != nil {
		return err
	}
	if !ReadyForCheckout(Classify(snap), snap) {
		return status.Errorf(status.CodeConflict,
			"organizer %s sub-account is not ready to accept payments", organizerID)
	}
	return nil
}

// GateForTransfer re-checks payout readiness with a fresh provider
// read, closing the time-of-check/time-of-use gap before moving money.
func (s *Service) GateForTransfer(ctx context.Context, organizerID string) (*models.ConnectAccount, error) {
	snap, acct, err := s.Snapshot(ctx, organizerID, true)
	if err != nil {
		return nil, err
	}
	if !ReadyForTransfer(snap) {
		return nil, status.Errorf(status.CodeConflict,
			"organizer %s sub-account cannot receive transfers", organizerID)
	}
	return acct, nil
}

// Register creates the local mirror row on first onboarding.
func (s *Service) Register(ctx context.Context, organizerID, providerAccountID string) (*models.ConnectAccount, error) {
	if _, err := s.GetByOrganizer(ctx, organizerID); err == nil {
		return nil, status.Errorf(status.CodeConflict, "organizer %s already has a sub-account", organizerID)
	} else if !errors.Is(err, status.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	acct := &models.ConnectAccount{
		ID:                uuid.NewString(),
		OrganizerID:       organizerID,
		ProviderAccountID: providerAccountID,
		DBStatus:          models.AccountUnverified,
		CardPayments:      provider.CapabilityInactive,
		Transfers:         provider.CapabilityInactive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	_, err := s.db.Insert("connect_accounts", dbx.Params{
		"id":                       acct.ID,
		"organizer_id":             acct.OrganizerID,
		"provider_account_id":      acct.ProviderAccountID,
		"db_status":                string(acct.DBStatus),
		"charges_enabled":          false,
		"payouts_enabled":          false,
		"card_payments_capability": acct.CardPayments,
		"transfers_capability":     acct.Transfers,
		"disabled":                 false,
		"created_at":               now,
		"updated_at":               now,
	}).WithContext(ctx).Execute()
	if err != nil {
		return nil, status.Wrap(status.CodeDatabase, "insert connect account", err)
	}
	return acct, nil
}

// Disable flags the account after its owner deletes their user
// account. Best-effort by contract: it runs detached and must never
// block or fail the deletion itself.
func (s *Service) Disable(organizerID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := s.db.Update("connect_accounts", dbx.Params{
			"disabled":   true,
			"updated_at": time.Now().UTC(),
		}, dbx.HashExp{"organizer_id": organizerID}).WithContext(ctx).Execute()
		if err != nil {
			slog.Error("failed to disable connect account", "organizer_id", organizerID, "error", err)
			return
		}
		slog.Info("connect account disabled", "organizer_id", organizerID)
	}()
}

func (s *Service) applySnapshot(ctx context.Context, acct *models.ConnectAccount, snap *provider.AccountSnapshot) error {
	dbStatus := Classify(snap)
	_, err := s.db.Update("connect_accounts", dbx.Params{
		"db_status":                string(dbStatus),
		"charges_enabled":          snap.ChargesEnabled,
		"payouts_enabled":          snap.PayoutsEnabled,
		"card_payments_capability": snap.CardPayments,
		"transfers_capability":     snap.Transfers,
		"updated_at":               time.Now().UTC(),
	}, dbx.HashExp{"id": acct.ID}).WithContext(ctx).Execute()
	if err != nil {
		return status.Wrap(status.CodeDatabase, "update connect account", err)
	}
	if acct.DBStatus != dbStatus {
		slog.Info("connect account reclassified",
			"organizer_id", acct.OrganizerID,
			"from", acct.DBStatus,
			"to", dbStatus,
		)
	}
	acct.DBStatus = dbStatus
	return nil
}

func (s *Service) cachedSnapshot(ctx context.Context, providerAccountID string) *provider.AccountSnapshot {
	raw, err := s.redis.Get(ctx, cacheKeyPrefix+providerAccountID).Result()
	if err != nil {
		return nil
	}
	var snap provider.AccountSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil
	}
	return &snap
}

func (s *Service) cacheSnapshot(ctx context.Context, snap *provider.AccountSnapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	s.redis.Set(ctx, cacheKeyPrefix+snap.AccountID, raw, s.cacheTTL)
}
