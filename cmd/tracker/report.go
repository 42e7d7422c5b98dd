package main

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/vestival/algorand-tracker/internal/models"
)

// formatUSD renders an amount as cents-rounded US dollars, e.g. "$1,234.50"
func formatUSD(amount float64) string {
	cents := decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

func formatOptionalUSD(amount *float64) string {
	if amount == nil {
		return "n/a"
	}
	return formatUSD(*amount)
}

// markdownReport lays a snapshot out as markdown tables
func markdownReport(snapshot *models.PortfolioSnapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Portfolio snapshot\n\n")
	fmt.Fprintf(&b, "Computed at %s using %s accounting.\n\n", snapshot.ComputedAt.UTC().Format(models.ISOMillis), snapshot.Method)

	b.WriteString("## Totals\n\n")
	b.WriteString("| Value | Cost basis | Realized PnL | Unrealized PnL |\n")
	b.WriteString("|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %s | %s | %s | %s |\n\n",
		formatUSD(snapshot.Totals.ValueUSD),
		formatUSD(snapshot.Totals.CostBasisUSD),
		formatUSD(snapshot.Totals.RealizedPnlUSD),
		formatUSD(snapshot.Totals.UnrealizedPnlUSD))

	b.WriteString("## Assets\n\n")
	if len(snapshot.Assets) == 0 {
		b.WriteString("No holdings.\n\n")
	} else {
		b.WriteString("| Asset | Balance | Price | Value | Cost basis | Unrealized PnL |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, a := range snapshot.Assets {
			name := a.AssetName
			if a.HasPriceGaps {
				name += " *"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
				name,
				decimal.NewFromFloat(a.Balance).StringFixed(6),
				formatOptionalUSD(a.PriceUSD),
				formatOptionalUSD(a.ValueUSD),
				formatUSD(a.CostBasisUSD),
				formatOptionalUSD(a.UnrealizedPnlUSD))
		}
		b.WriteString("\n")
	}

	if len(snapshot.Wallets) > 1 {
		b.WriteString("## Wallets\n\n")
		b.WriteString("| Wallet | Value | Cost basis |\n")
		b.WriteString("|---|---|---|\n")
		for _, w := range snapshot.Wallets {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", shortAddress(w.Wallet), formatUSD(w.TotalValueUSD), formatUSD(w.TotalCostBasisUSD))
		}
		b.WriteString("\n")
	}

	if len(snapshot.DefiPositions) > 0 {
		b.WriteString("## DeFi positions\n\n")
		b.WriteString("| Protocol | Wallet | Type | Value |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, p := range snapshot.DefiPositions {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", p.Protocol, shortAddress(p.Wallet), p.PositionType, formatOptionalUSD(p.ValueUSD))
		}
		b.WriteString("\n")
		if apr := snapshot.YieldEstimate.EstimatedAprPct; apr != nil {
			fmt.Fprintf(&b, "Estimated APR: %.1f%%. %s\n\n", *apr, snapshot.YieldEstimate.Note)
		}
	}

	fmt.Fprintf(&b, "%d transactions analysed.\n", len(snapshot.Transactions))
	return b.String()
}

func shortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "…" + address[len(address)-4:]
}

// renderMarkdown styles markdown for the terminal
func renderMarkdown(md string, width int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return out, nil
}
