// Package adapter contains clients for the external services the tracker reads from.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/vestival/algorand-tracker/internal/circuitbreaker"
	"github.com/vestival/algorand-tracker/internal/config"
	apperrors "github.com/vestival/algorand-tracker/internal/errors"
	"github.com/vestival/algorand-tracker/internal/logging"
	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/retry"
	"github.com/vestival/algorand-tracker/internal/types"
)

const indexerProvider = "algorand-indexer"

// AssetInfoCache stores immutable asset parameters between runs
type AssetInfoCache interface {
	GetAssetInfo(ctx context.Context, assetKey string) (*models.AssetInfo, bool, error)
	SetAssetInfo(ctx context.Context, info *models.AssetInfo) error
}

// IndexerClient reads accounts, assets and transactions from an Algorand indexer
type IndexerClient struct {
	baseURL    string
	token      string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
	retry      *retry.Config
	cache      AssetInfoCache
}

// NewIndexerClient creates an indexer client. cache may be nil.
func NewIndexerClient(cfg config.IndexerConfig, cache AssetInfoCache) *IndexerClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &IndexerClient{
		baseURL:    cfg.URL,
		token:      cfg.Token,
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		breaker:    circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(indexerProvider)),
		retry:      retry.DefaultConfig(),
		cache:      cache,
	}
}

// WithRetryConfig overrides the retry policy
func (c *IndexerClient) WithRetryConfig(cfg *retry.Config) *IndexerClient {
	c.retry = cfg
	return c
}

// Breaker exposes the circuit breaker for health reporting
func (c *IndexerClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

type indexerAccountResponse struct {
	Account struct {
		Address string `json:"address"`
		Amount  uint64 `json:"amount"`
		Assets  []struct {
			AssetID uint64 `json:"asset-id"`
			Amount  uint64 `json:"amount"`
		} `json:"assets"`
		AppsLocalState []struct {
			ID uint64 `json:"id"`
		} `json:"apps-local-state"`
	} `json:"account"`
}

type indexerAssetResponse struct {
	Asset struct {
		Index  uint64 `json:"index"`
		Params struct {
			Decimals int    `json:"decimals"`
			Name     string `json:"name"`
			UnitName string `json:"unit-name"`
		} `json:"params"`
	} `json:"asset"`
}

type indexerTxn struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Fee       uint64 `json:"fee"`
	RoundTime int64  `json:"round-time"`
	Group     string `json:"group"`
	Note      string `json:"note"`
	Payment   *struct {
		Receiver string `json:"receiver"`
		Amount   uint64 `json:"amount"`
	} `json:"payment-transaction"`
	AssetTransfer *struct {
		Receiver string `json:"receiver"`
		Amount   uint64 `json:"amount"`
		AssetID  uint64 `json:"asset-id"`
	} `json:"asset-transfer-transaction"`
	InnerTxns []indexerTxn `json:"inner-txns"`
}

type indexerTransactionsResponse struct {
	Transactions []indexerTxn `json:"transactions"`
	NextToken    string       `json:"next-token"`
}

// GetAccountState returns decimal-adjusted balances and opted-in applications.
// An address the indexer has never seen is an empty account.
func (c *IndexerClient) GetAccountState(ctx context.Context, address string) (*models.AccountState, error) {
	var resp indexerAccountResponse
	err := c.getJSON(ctx, "/v2/accounts/"+url.PathEscape(address), nil, &resp)
	if isNotFound(err) {
		return &models.AccountState{Address: address}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account %s: %w", address, err)
	}

	state := &models.AccountState{
		Address:      address,
		NativeAmount: scaleDown(resp.Account.Amount, 6),
	}
	for _, app := range resp.Account.AppsLocalState {
		state.AppIDs = append(state.AppIDs, app.ID)
	}

	for _, holding := range resp.Account.Assets {
		key := strconv.FormatUint(holding.AssetID, 10)
		decimals := 0
		info, err := c.GetAssetInfo(ctx, key)
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithField("assetKey", key).Warn("asset decimals unavailable")
		} else {
			decimals = info.Decimals
		}
		state.Assets = append(state.Assets, models.AssetHolding{
			AssetKey: key,
			Amount:   scaleDown(holding.Amount, decimals),
			Decimals: decimals,
		})
	}
	return state, nil
}

// GetAssetInfo returns asset parameters, consulting the cache first
func (c *IndexerClient) GetAssetInfo(ctx context.Context, assetKey string) (*models.AssetInfo, error) {
	if assetKey == types.NativeAssetKey {
		return &models.AssetInfo{AssetKey: types.NativeAssetKey, Name: "Algorand", UnitName: "ALGO", Decimals: 6}, nil
	}
	if _, err := strconv.ParseUint(assetKey, 10, 64); err != nil {
		return nil, apperrors.NewInvalidParameterError("assetKey", "must be an integer asset id")
	}

	if c.cache != nil {
		if info, ok, err := c.cache.GetAssetInfo(ctx, assetKey); err == nil && ok {
			return info, nil
		}
	}

	var resp indexerAssetResponse
	if err := c.getJSON(ctx, "/v2/assets/"+assetKey, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch asset %s: %w", assetKey, err)
	}
	info := &models.AssetInfo{
		AssetKey: assetKey,
		Name:     resp.Asset.Params.Name,
		UnitName: resp.Asset.Params.UnitName,
		Decimals: resp.Asset.Params.Decimals,
	}

	if c.cache != nil {
		if err := c.cache.SetAssetInfo(ctx, info); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("failed to cache asset info")
		}
	}
	return info, nil
}

// GetTransactions pages through an address's history, newest first, up to limit
// top-level records. Inner transactions are flattened after their parent with
// ids of the form <parent>:inner:<i>.
func (c *IndexerClient) GetTransactions(ctx context.Context, address string, limit int) ([]models.RawTransaction, error) {
	var out []models.RawTransaction
	fetched := 0
	next := ""

	for limit <= 0 || fetched < limit {
		pageSize := c.pageSize
		if limit > 0 && limit-fetched < pageSize {
			pageSize = limit - fetched
		}

		query := url.Values{}
		query.Set("address", address)
		query.Set("limit", strconv.Itoa(pageSize))
		if next != "" {
			query.Set("next", next)
		}

		var page indexerTransactionsResponse
		if err := c.getJSON(ctx, "/v2/transactions", query, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch transactions for %s: %w", address, err)
		}

		for _, txn := range page.Transactions {
			out = flattenTxn(out, txn, txn.ID, txn.RoundTime)
		}
		fetched += len(page.Transactions)

		if page.NextToken == "" || len(page.Transactions) == 0 {
			break
		}
		next = page.NextToken
	}
	return out, nil
}

func flattenTxn(out []models.RawTransaction, txn indexerTxn, id string, parentTime int64) []models.RawTransaction {
	ts := txn.RoundTime
	if ts == 0 {
		ts = parentTime
	}

	raw := models.RawTransaction{
		ID:        id,
		Sender:    txn.Sender,
		Fee:       txn.Fee,
		Timestamp: ts,
		Group:     txn.Group,
		Note:      txn.Note,
	}
	if txn.Payment != nil {
		raw.Payment = &models.PaymentTransfer{Receiver: txn.Payment.Receiver, Amount: txn.Payment.Amount}
	}
	if txn.AssetTransfer != nil {
		raw.AssetTransfer = &models.AssetTransfer{
			Receiver: txn.AssetTransfer.Receiver,
			Amount:   txn.AssetTransfer.Amount,
			AssetKey: strconv.FormatUint(txn.AssetTransfer.AssetID, 10),
		}
	}
	out = append(out, raw)

	for i, inner := range txn.InnerTxns {
		out = flattenTxn(out, inner, fmt.Sprintf("%s:inner:%d", id, i), ts)
	}
	return out
}

// getJSON issues a throttled GET through the retry policy and circuit breaker
func (c *IndexerClient) getJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	return retry.Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return apperrors.NewInternalError("failed to build indexer request", err)
			}
			req.Header.Set("Accept", "application/json")
			if c.token != "" {
				req.Header.Set("X-API-Key", c.token)
			}

			start := time.Now()
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return apperrors.NewProviderError(indexerProvider, err)
			}
			defer func() {
				_ = resp.Body.Close()
			}()

			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"path":     path,
				"status":   resp.StatusCode,
				"duration": time.Since(start).String(),
				"attempt":  attempt,
			}).Debug("indexer request")

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
				return apperrors.NewProviderStatusError(indexerProvider, resp.StatusCode)
			}
			if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
				return apperrors.NewProviderError(indexerProvider, fmt.Errorf("decode response: %w", err))
			}
			return nil
		})
	})
}

func isNotFound(err error) bool {
	var catErr *apperrors.CategorizedError
	if !errors.As(err, &catErr) {
		return false
	}
	status, ok := catErr.Details["status"].(int)
	return ok && status == http.StatusNotFound
}

func scaleDown(amount uint64, decimals int) float64 {
	return decimal.NewFromUint64(amount).Shift(-int32(decimals)).InexactFloat64() // #nosec G115 - asa decimals are 0..19
}
