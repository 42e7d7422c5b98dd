// Package main provides the tracker operator CLI. It computes snapshots and history
// straight from the indexer without touching the databases.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vestival/algorand-tracker/internal/adapter"
	"github.com/vestival/algorand-tracker/internal/config"
	"github.com/vestival/algorand-tracker/internal/defi"
	"github.com/vestival/algorand-tracker/internal/history"
	"github.com/vestival/algorand-tracker/internal/logging"
	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/service"
	"github.com/vestival/algorand-tracker/internal/types"
)

type options struct {
	wallets  []string
	txLimit  int
	logLevel string
}

type clients struct {
	indexer  *adapter.IndexerClient
	prices   *adapter.PriceClient
	snapshot *service.SnapshotService
}

func (o *options) validate() error {
	if len(o.wallets) == 0 {
		return fmt.Errorf("at least one --wallet is required")
	}
	for _, w := range o.wallets {
		if !service.IsValidAddress(w) {
			return fmt.Errorf("invalid Algorand address: %s", w)
		}
	}
	return nil
}

func (o *options) connect() (*clients, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.txLimit > 0 {
		cfg.Indexer.TxLimit = o.txLimit
	}

	indexer := adapter.NewIndexerClient(cfg.Indexer, nil)
	prices := adapter.NewPriceClient(cfg.Price, nil)
	defiFactory := func(accounts defi.AccountSource, priceSource defi.PriceSource) service.DefiCollector {
		return defi.NewDefaultRegistry(cfg.DeFi, accounts, priceSource)
	}

	return &clients{
		indexer:  indexer,
		prices:   prices,
		snapshot: service.NewSnapshotService(indexer, prices, defiFactory, cfg.Indexer.TxLimit),
	}, nil
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "tracker",
		Short: "Algorand portfolio accounting from the command line",
		Long:  `tracker computes FIFO portfolio snapshots and value history for a set of Algorand wallets.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.InitGlobalLogger(logging.ParseLogLevel(opts.logLevel), logging.FormatText)
			logging.GetGlobalLogger().SetOutput(os.Stderr)
			return opts.validate()
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringSliceVarP(&opts.wallets, "wallet", "w", nil, "Wallet address (repeatable)")
	rootCmd.PersistentFlags().IntVar(&opts.txLimit, "tx-limit", 0, "Maximum transactions fetched per wallet (default from INDEXER_TX_LIMIT)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newSnapshotCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newSnapshotCmd(opts *options) *cobra.Command {
	var (
		format string
		width  int
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Compute a portfolio snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "markdown" {
				return fmt.Errorf("unknown format %q (want json or markdown)", format)
			}
			c, err := opts.connect()
			if err != nil {
				return err
			}

			snapshot, err := c.snapshot.ComputeSnapshot(cmd.Context(), opts.wallets)
			if err != nil {
				return err
			}
			return writeSnapshot(cmd.OutOrStdout(), snapshot, format, width)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Output format: json, markdown")
	cmd.Flags().IntVar(&width, "width", 100, "Word wrap width for markdown output")
	return cmd
}

func writeSnapshot(w io.Writer, snapshot *models.PortfolioSnapshot, format string, width int) error {
	if format == "json" {
		return writeJSON(w, snapshot)
	}
	out, err := renderMarkdown(markdownReport(snapshot), width)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func newHistoryCmd(opts *options) *cobra.Command {
	var (
		perWallet bool
		asset     string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Reconstruct the daily portfolio value series",
		Long: `history computes a fresh snapshot and walks the wallets' transactions backward from it.
With --per-wallet it prints one forward-replayed value series per wallet plus their sum;
with --asset it prints per-wallet balances of that asset instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			snapshot, err := c.snapshot.ComputeSnapshot(ctx, opts.wallets)
			if err != nil {
				return err
			}

			transfers := history.TransfersFromSnapshotTransactions(snapshot.Transactions)
			switch {
			case asset != "":
				// snapshot assets are summed across wallets, so each wallet is anchored at its own account state
				latest, err := walletBalances(ctx, c.indexer, opts.wallets, asset)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), history.PerWalletAssetBalanceSeries(history.WalletBalanceInput{
					Wallets:               opts.wallets,
					AssetKey:              asset,
					Transactions:          transfers,
					LatestTs:              snapshot.ComputedAt,
					LatestBalanceByWallet: latest,
				}))
			case perWallet:
				latest := make(map[string]float64)
				for _, w := range snapshot.Wallets {
					latest[w.Wallet] = w.TotalValueUSD
				}
				aligned := history.AlignSeriesByTimestamp(history.PerWalletValueSeries(history.WalletValueInput{
					Wallets:             opts.wallets,
					Transactions:        transfers,
					LatestTs:            snapshot.ComputedAt,
					LatestValueByWallet: latest,
				}))
				return writeJSON(cmd.OutOrStdout(), append(aligned, history.SumAlignedSeries(aligned)))
			}

			daily := history.MergeFallback(fetchDailyPrices(ctx, c.prices, snapshot), history.HistoricalFallbackByDay(snapshot))
			points := history.NewBuilder().Build(history.InputFromSnapshot(snapshot, daily))
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"history": points})
		},
	}
	cmd.Flags().BoolVar(&perWallet, "per-wallet", false, "Print one value series per wallet")
	cmd.Flags().StringVar(&asset, "asset", "", "Print per-wallet balances of this asset key (ALGO or an ASA id)")
	return cmd
}

// accountReader reads current on-chain balances
type accountReader interface {
	GetAccountState(ctx context.Context, address string) (*models.AccountState, error)
}

// walletBalances reads each wallet's current holding of assetKey
func walletBalances(ctx context.Context, accounts accountReader, wallets []string, assetKey string) (map[string]float64, error) {
	out := make(map[string]float64, len(wallets))
	for _, w := range wallets {
		state, err := accounts.GetAccountState(ctx, w)
		if err != nil {
			return nil, fmt.Errorf("failed to read account %s: %w", w, err)
		}
		out[w] = state.Balance(assetKey)
	}
	return out, nil
}

// fetchDailyPrices asks the price provider for every asset across the snapshot's transaction range
func fetchDailyPrices(ctx context.Context, prices service.HistoricalPriceProvider, snapshot *models.PortfolioSnapshot) []models.DailyPrice {
	var earliest int64
	keys := map[string]struct{}{types.NativeAssetKey: {}}
	for _, tx := range snapshot.Transactions {
		if tx.AssetKey != "" {
			keys[tx.AssetKey] = struct{}{}
		}
		if tx.Timestamp > 0 && (earliest == 0 || tx.Timestamp < earliest) {
			earliest = tx.Timestamp
		}
	}
	for _, a := range snapshot.Assets {
		if a.AssetKey != "" {
			keys[a.AssetKey] = struct{}{}
		}
	}
	if earliest == 0 {
		return nil
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	fromDay, toDay := history.DayKeyFromUnix(earliest), history.DayKey(snapshot.ComputedAt)
	var out []models.DailyPrice
	for _, key := range sorted {
		rows, err := prices.GetDailyPrices(ctx, key, fromDay, toDay)
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithField("assetKey", key).Warn("historical price fetch failed")
			continue
		}
		out = append(out, rows...)
	}
	return out
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
