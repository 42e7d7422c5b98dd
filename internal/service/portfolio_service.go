package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/vestival/algorand-tracker/internal/errors"
	"github.com/vestival/algorand-tracker/internal/history"
	"github.com/vestival/algorand-tracker/internal/logging"
	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

// Repository interfaces for dependency injection

// WalletRepository interface for linked wallet operations
type WalletRepository interface {
	Link(ctx context.Context, wallet *models.LinkedWallet, audit *models.AuditLog) error
	ListByUser(ctx context.Context, userID string) ([]*models.LinkedWallet, error)
	ListVerified(ctx context.Context, userID string) ([]*models.LinkedWallet, error)
}

// SnapshotRepository interface for persisted snapshot operations
type SnapshotRepository interface {
	Create(ctx context.Context, snapshot *models.StoredSnapshot) error
	GetLatest(ctx context.Context, userID string) (*models.StoredSnapshot, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]*models.StoredSnapshot, error)
}

// AuditRepository interface for audit log writes
type AuditRepository interface {
	Record(ctx context.Context, entry *models.AuditLog) error
}

// SnapshotCache holds the latest snapshot per user
type SnapshotCache interface {
	GetLatestSnapshot(ctx context.Context, userID string) (*models.StoredSnapshot, bool, error)
	SetLatestSnapshot(ctx context.Context, snapshot *models.StoredSnapshot) error
}

// DailyPriceStore persists one USD price per asset and day
type DailyPriceStore interface {
	Upsert(ctx context.Context, prices []models.DailyPrice) error
	GetRange(ctx context.Context, assetKeys []string, fromDay, toDay string) ([]models.DailyPrice, error)
}

// HistoricalPriceProvider fetches daily prices from an external source
type HistoricalPriceProvider interface {
	GetDailyPrices(ctx context.Context, assetKey, fromDay, toDay string) ([]models.DailyPrice, error)
}

// SnapshotComputer computes a fresh snapshot for a set of wallets
type SnapshotComputer interface {
	ComputeSnapshot(ctx context.Context, wallets []string) (*models.PortfolioSnapshot, error)
}

// AssetNamer resolves display names for assets
type AssetNamer interface {
	GetAssetInfo(ctx context.Context, assetKey string) (*models.AssetInfo, error)
}

// PortfolioService persists, loads and charts portfolio snapshots for a user
type PortfolioService struct {
	walletRepo   WalletRepository
	snapshotRepo SnapshotRepository
	auditRepo    AuditRepository
	computer     SnapshotComputer
	namer        AssetNamer

	cache        SnapshotCache
	dailyPrices  DailyPriceStore
	historical   HistoricalPriceProvider
	maxSnapshots int
	builder      *history.Builder
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(
	walletRepo WalletRepository,
	snapshotRepo SnapshotRepository,
	auditRepo AuditRepository,
	computer SnapshotComputer,
	namer AssetNamer,
	maxSnapshots int,
) *PortfolioService {
	if maxSnapshots <= 0 {
		maxSnapshots = 365
	}
	return &PortfolioService{
		walletRepo:   walletRepo,
		snapshotRepo: snapshotRepo,
		auditRepo:    auditRepo,
		computer:     computer,
		namer:        namer,
		maxSnapshots: maxSnapshots,
		builder:      history.NewBuilder(),
	}
}

// WithCache enables the latest-snapshot cache
func (s *PortfolioService) WithCache(cache SnapshotCache) *PortfolioService {
	s.cache = cache
	return s
}

// WithDailyPrices enables daily price persistence and on-demand historical fetches.
// provider may be nil.
func (s *PortfolioService) WithDailyPrices(store DailyPriceStore, provider HistoricalPriceProvider) *PortfolioService {
	s.dailyPrices = store
	s.historical = provider
	return s
}

// WithClock overrides the clock used by the history builder
func (s *PortfolioService) WithClock(now func() time.Time) *PortfolioService {
	s.builder.Now = now
	return s
}

// RefreshResult is returned by Refresh
type RefreshResult struct {
	OK         bool   `json:"ok"`
	SnapshotID string `json:"snapshotId"`
}

// Refresh computes and persists a new snapshot across the user's verified wallets
func (s *PortfolioService) Refresh(ctx context.Context, userID string) (*RefreshResult, error) {
	logger := logging.FromContext(ctx).WithField("userId", userID)

	wallets, err := s.verifiedAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, &types.ServiceError{
			Code:    apperrors.CodeNoVerifiedWallets,
			Message: "No verified wallets linked",
		}
	}

	stored, snapshot, err := s.computeAndPersist(ctx, userID, wallets)
	if err != nil {
		return nil, err
	}

	audit := &models.AuditLog{
		UserID: userID,
		Action: "portfolio.refresh",
		Metadata: map[string]interface{}{
			"walletCount": len(wallets),
			"snapshotId":  stored.ID,
		},
	}
	// the snapshot is already committed, so a lost audit entry does not fail the refresh
	if err := s.auditRepo.Record(ctx, audit); err != nil {
		logger.WithError(err).Warnf("snapshot %s stored without audit entry", stored.ID)
	}

	s.recordDailyPrices(ctx, snapshot.DailyPrices)

	logger.WithFields(map[string]interface{}{
		"snapshotId":  stored.ID,
		"walletCount": len(wallets),
	}).Info("portfolio refreshed")

	return &RefreshResult{OK: true, SnapshotID: stored.ID}, nil
}

// GetLatestSnapshot returns the user's most recent snapshot. A missing snapshot, or one
// without transactions, is recomputed when the user has verified wallets.
func (s *PortfolioService) GetLatestSnapshot(ctx context.Context, userID string) (*models.PortfolioSnapshot, error) {
	stored, err := s.loadLatest(ctx, userID)
	if err != nil {
		return nil, err
	}

	var snapshot *models.PortfolioSnapshot
	if stored != nil {
		snapshot, err = stored.Decode()
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithField("snapshotId", stored.ID).Warn("stored snapshot is unreadable")
			snapshot = nil
		}
	}

	if snapshot == nil || len(snapshot.Transactions) == 0 {
		wallets, err := s.verifiedAddresses(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(wallets) > 0 {
			_, snapshot, err = s.computeAndPersist(ctx, userID, wallets)
			if err != nil {
				return nil, err
			}
		}
	}

	if snapshot == nil {
		return nil, &types.ServiceError{
			Code:    apperrors.CodeSnapshotNotFound,
			Message: "no snapshot available",
		}
	}

	s.backfillAssetNames(ctx, snapshot)
	return snapshot, nil
}

// GetHistory returns the user's valuation series
func (s *PortfolioService) GetHistory(ctx context.Context, userID string, mode types.HistoryMode) ([]models.HistoryPoint, error) {
	if mode == "" {
		mode = types.HistoryModeSnapshots
	}
	if !mode.IsValid() {
		return nil, apperrors.NewInvalidParameterError("mode", "must be snapshots or reconstructed")
	}

	if mode == types.HistoryModeSnapshots {
		stored, err := s.snapshotRepo.ListRecent(ctx, userID, s.maxSnapshots)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}
		return history.BuildFromSnapshots(history.SnapshotRowsFrom(stored)), nil
	}

	snapshot, err := s.GetLatestSnapshot(ctx, userID)
	if err != nil {
		var svcErr *types.ServiceError
		if errors.As(err, &svcErr) && svcErr.Code == apperrors.CodeSnapshotNotFound {
			return []models.HistoryPoint{}, nil
		}
		return nil, err
	}

	daily := s.loadDailyPrices(ctx, snapshot)
	daily = history.MergeFallback(daily, history.HistoricalFallbackByDay(snapshot))
	return s.builder.Build(history.InputFromSnapshot(snapshot, daily)), nil
}

func (s *PortfolioService) verifiedAddresses(ctx context.Context, userID string) ([]string, error) {
	wallets, err := s.walletRepo.ListVerified(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list verified wallets: %w", err)
	}
	addresses := make([]string, 0, len(wallets))
	for _, w := range wallets {
		addresses = append(addresses, w.Address)
	}
	return addresses, nil
}

func (s *PortfolioService) computeAndPersist(ctx context.Context, userID string, wallets []string) (*models.StoredSnapshot, *models.PortfolioSnapshot, error) {
	snapshot, err := s.computer.ComputeSnapshot(ctx, wallets)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute snapshot: %w", err)
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	stored := &models.StoredSnapshot{
		ID:         uuid.NewString(),
		UserID:     userID,
		Method:     string(snapshot.Method),
		ComputedAt: snapshot.ComputedAt,
		Data:       data,
	}
	if err := s.snapshotRepo.Create(ctx, stored); err != nil {
		return nil, nil, fmt.Errorf("failed to store snapshot: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetLatestSnapshot(ctx, stored); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("failed to cache snapshot")
		}
	}
	return stored, snapshot, nil
}

func (s *PortfolioService) loadLatest(ctx context.Context, userID string) (*models.StoredSnapshot, error) {
	logger := logging.FromContext(ctx)

	if s.cache != nil {
		stored, ok, err := s.cache.GetLatestSnapshot(ctx, userID)
		if err != nil {
			logger.WithError(err).Warn("snapshot cache read failed")
		} else if ok {
			return stored, nil
		}
	}

	stored, err := s.snapshotRepo.GetLatest(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	if stored != nil && s.cache != nil {
		if err := s.cache.SetLatestSnapshot(ctx, stored); err != nil {
			logger.WithError(err).Warn("failed to cache snapshot")
		}
	}
	return stored, nil
}

// backfillAssetNames fills names that are missing or still equal to the raw key,
// which older snapshots carry
func (s *PortfolioService) backfillAssetNames(ctx context.Context, snapshot *models.PortfolioSnapshot) {
	names := make(map[string]string)
	resolve := func(key string) string {
		if name, ok := names[key]; ok {
			return name
		}
		name := s.assetName(ctx, key)
		names[key] = name
		return name
	}

	for i := range snapshot.Assets {
		row := &snapshot.Assets[i]
		if row.AssetName == "" || row.AssetName == row.AssetKey {
			row.AssetName = resolve(row.AssetKey)
		}
	}
	for i := range snapshot.Transactions {
		row := &snapshot.Transactions[i]
		if row.AssetName == "" || row.AssetName == row.AssetKey {
			row.AssetName = resolve(row.AssetKey)
		}
	}
}

func (s *PortfolioService) assetName(ctx context.Context, assetKey string) string {
	if assetKey == types.NativeAssetKey || assetKey == "" {
		return types.NativeAssetKey
	}
	if _, err := strconv.ParseUint(assetKey, 10, 64); err != nil || s.namer == nil {
		return assetKey
	}
	info, err := s.namer.GetAssetInfo(ctx, assetKey)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("assetKey", assetKey).Debug("asset name unavailable")
		return assetKey
	}
	return info.DisplayName()
}

func (s *PortfolioService) recordDailyPrices(ctx context.Context, prices []models.DailyPrice) {
	if s.dailyPrices == nil || len(prices) == 0 {
		return
	}
	if err := s.dailyPrices.Upsert(ctx, prices); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("failed to record daily prices")
	}
}

// loadDailyPrices reads stored daily prices covering the snapshot's transaction range and
// fetches assets with missing days from the historical provider, storing what it finds
func (s *PortfolioService) loadDailyPrices(ctx context.Context, snapshot *models.PortfolioSnapshot) []models.DailyPrice {
	if s.dailyPrices == nil {
		return nil
	}
	logger := logging.FromContext(ctx)

	assetKeys, fromDay := priceRange(snapshot)
	if len(assetKeys) == 0 || fromDay == "" {
		return nil
	}
	toDay := history.DayKey(snapshot.ComputedAt)
	if fromDay > toDay {
		fromDay = toDay
	}

	stored, err := s.dailyPrices.GetRange(ctx, assetKeys, fromDay, toDay)
	if err != nil {
		logger.WithError(err).Warn("daily price read failed")
		stored = nil
	}
	if s.historical == nil {
		return stored
	}

	have := make(map[string]map[string]struct{})
	for _, row := range stored {
		if row.PriceUSD == nil {
			continue
		}
		if have[row.AssetKey] == nil {
			have[row.AssetKey] = make(map[string]struct{})
		}
		have[row.AssetKey][row.DayKey] = struct{}{}
	}

	days := history.EnumerateDays(fromDay, toDay)
	var fetched []models.DailyPrice
	for _, key := range assetKeys {
		if len(have[key]) >= len(days) {
			continue
		}
		rows, err := s.historical.GetDailyPrices(ctx, key, fromDay, toDay)
		if err != nil {
			logger.WithError(err).WithField("assetKey", key).Warn("historical price fetch failed")
			continue
		}
		for _, row := range rows {
			if _, ok := have[key][row.DayKey]; !ok {
				fetched = append(fetched, row)
			}
		}
	}

	s.recordDailyPrices(ctx, fetched)
	return append(stored, fetched...)
}

// priceRange returns the sorted asset keys of a snapshot and the first transaction day
func priceRange(snapshot *models.PortfolioSnapshot) ([]string, string) {
	keys := make(map[string]struct{})
	for _, a := range snapshot.Assets {
		key := a.AssetKey
		if key == "" {
			key = types.NativeAssetKey
		}
		keys[key] = struct{}{}
	}

	var earliest int64
	for _, tx := range snapshot.Transactions {
		if tx.AssetKey != "" {
			keys[tx.AssetKey] = struct{}{}
		}
		if tx.Timestamp > 0 && (earliest == 0 || tx.Timestamp < earliest) {
			earliest = tx.Timestamp
		}
	}

	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)

	if earliest == 0 {
		return out, ""
	}
	return out, history.DayKeyFromUnix(earliest)
}
