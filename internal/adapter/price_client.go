package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/vestival/algorand-tracker/internal/circuitbreaker"
	"github.com/vestival/algorand-tracker/internal/config"
	apperrors "github.com/vestival/algorand-tracker/internal/errors"
	"github.com/vestival/algorand-tracker/internal/logging"
	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

const (
	priceProvider = "coingecko"
	algoCoinID    = "algorand"
	simplePrice   = "/simple/price"
)

// SpotPriceCache stores short-lived spot prices
type SpotPriceCache interface {
	GetSpotPrices(ctx context.Context, assetKeys []string) (models.PriceMap, []string, error)
	SetSpotPrices(ctx context.Context, prices models.PriceMap) error
}

// PriceClient fetches USD prices from CoinGecko. Provider failures and unmapped
// assets produce missing prices, never errors.
type PriceClient struct {
	spotURL      string
	baseURL      string
	apiKey       string
	apiKeyHeader string
	coinIDs      map[string]string // asset key -> coingecko id
	httpClient   *http.Client
	breaker      *circuitbreaker.CircuitBreaker
	cache        SpotPriceCache
}

// NewPriceClient creates a price client. cache may be nil.
func NewPriceClient(cfg config.PriceConfig, cache SpotPriceCache) *PriceClient {
	spotURL := strings.TrimRight(cfg.APIURL, "/")
	header := "x-cg-demo-api-key"
	if strings.Contains(spotURL, "pro-api.coingecko.com") {
		header = "x-cg-pro-api-key"
	}

	coinIDs := map[string]string{types.NativeAssetKey: algoCoinID}
	for assetID, coinID := range cfg.AsaPriceMap {
		coinIDs[assetID] = coinID
	}

	return &PriceClient{
		spotURL:      spotURL,
		baseURL:      strings.TrimSuffix(spotURL, simplePrice),
		apiKey:       cfg.APIKey,
		apiKeyHeader: header,
		coinIDs:      coinIDs,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		breaker:      circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(priceProvider)),
		cache:        cache,
	}
}

// Breaker exposes the circuit breaker for health reporting
func (p *PriceClient) Breaker() *circuitbreaker.CircuitBreaker {
	return p.breaker
}

// coinID returns the provider id mapped to an asset key
func (p *PriceClient) coinID(assetKey string) (string, bool) {
	id, ok := p.coinIDs[assetKey]
	return id, ok
}

// GetSpotPrices returns USD prices for the mapped assets among assetKeys
func (p *PriceClient) GetSpotPrices(ctx context.Context, assetKeys []string) (models.PriceMap, error) {
	logger := logging.FromContext(ctx)
	out := models.PriceMap{}

	pending := uniqueKeys(assetKeys)
	if p.cache != nil && len(pending) > 0 {
		hits, misses, err := p.cache.GetSpotPrices(ctx, pending)
		if err != nil {
			logger.WithError(err).Warn("spot price cache read failed")
		} else {
			out.Merge(hits)
			pending = misses
		}
	}

	idsToKeys := make(map[string][]string)
	for _, key := range pending {
		if id, ok := p.coinID(key); ok {
			idsToKeys[id] = append(idsToKeys[id], key)
		}
	}
	if len(idsToKeys) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(idsToKeys))
	for id := range idsToKeys {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")

	var payload map[string]map[string]float64
	if err := p.getJSON(ctx, p.spotURL+"?"+query.Encode(), &payload); err != nil {
		logger.WithError(err).Warn("spot price request failed")
		return out, nil
	}

	fetched := models.PriceMap{}
	for id, keys := range idsToKeys {
		price, ok := payload[id]["usd"]
		if !ok {
			continue
		}
		for _, key := range keys {
			fetched[key] = price
		}
	}
	out.Merge(fetched)

	if p.cache != nil && len(fetched) > 0 {
		if err := p.cache.SetSpotPrices(ctx, fetched); err != nil {
			logger.WithError(err).Warn("failed to cache spot prices")
		}
	}
	return out, nil
}

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// GetDailyPrices returns one USD price per UTC day (the last sample of the day)
// between two day keys, inclusive. Unmapped assets and provider failures return nil.
func (p *PriceClient) GetDailyPrices(ctx context.Context, assetKey, fromDay, toDay string) ([]models.DailyPrice, error) {
	id, ok := p.coinID(assetKey)
	if !ok {
		return nil, nil
	}
	from, err := time.Parse("2006-01-02", fromDay)
	if err != nil {
		return nil, apperrors.NewInvalidParameterError("fromDay", err.Error())
	}
	to, err := time.Parse("2006-01-02", toDay)
	if err != nil {
		return nil, apperrors.NewInvalidParameterError("toDay", err.Error())
	}

	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("from", fmt.Sprintf("%d", from.Unix()))
	query.Set("to", fmt.Sprintf("%d", to.Add(24*time.Hour-time.Second).Unix()))

	var payload marketChartResponse
	endpoint := fmt.Sprintf("%s/coins/%s/market_chart/range?%s", p.baseURL, url.PathEscape(id), query.Encode())
	if err := p.getJSON(ctx, endpoint, &payload); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("assetKey", assetKey).Warn("daily price request failed")
		return nil, nil
	}

	type sample struct {
		ms    float64
		price float64
	}
	byDay := make(map[string]sample)
	for _, point := range payload.Prices {
		day := time.UnixMilli(int64(point[0])).UTC().Format("2006-01-02")
		if day < fromDay || day > toDay {
			continue
		}
		if existing, ok := byDay[day]; ok && existing.ms > point[0] {
			continue
		}
		byDay[day] = sample{ms: point[0], price: point[1]}
	}

	out := make([]models.DailyPrice, 0, len(byDay))
	for day, s := range byDay {
		price := s.price
		out = append(out, models.DailyPrice{AssetKey: assetKey, DayKey: day, PriceUSD: &price, Source: priceProvider})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DayKey < out[j].DayKey })
	return out, nil
}

func (p *PriceClient) getJSON(ctx context.Context, endpoint string, dest interface{}) error {
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return apperrors.NewInternalError("failed to build price request", err)
		}
		req.Header.Set("Accept", "application/json")
		if p.apiKey != "" {
			req.Header.Set(p.apiKeyHeader, p.apiKey)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return apperrors.NewProviderError(priceProvider, err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
			return apperrors.NewProviderStatusError(priceProvider, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return apperrors.NewProviderError(priceProvider, fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}

func uniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok || k == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
