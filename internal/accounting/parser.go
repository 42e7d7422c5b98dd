// Package accounting turns ledger transfers into lot events and runs FIFO cost-basis matching.
package accounting

import (
	"github.com/shopspring/decimal"

	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

// algoDecimals is log10 of types.MicroAlgosPerAlgo
const algoDecimals = 6

// LotEvent is a directional movement of value for one owned wallet
type LotEvent struct {
	TxID         string
	Wallet       string // owned side: sender for sells, receiver for buys
	Timestamp    int64
	AssetKey     string
	Side         types.Side
	Amount       decimal.Decimal
	UnitPriceUSD *decimal.Decimal
	FeeUSD       decimal.Decimal
}

// WalletSet is the set of wallet addresses owned by one user
type WalletSet map[string]struct{}

// NewWalletSet builds a set from addresses
func NewWalletSet(addresses []string) WalletSet {
	set := make(WalletSet, len(addresses))
	for _, addr := range addresses {
		set[addr] = struct{}{}
	}
	return set
}

// Contains reports whether address is owned
func (s WalletSet) Contains(address string) bool {
	_, ok := s[address]
	return ok
}

// Transfer is the value-moving part of a transaction with amounts decimal-adjusted
type Transfer struct {
	Type     types.TransactionType
	AssetKey string
	Receiver string
	Amount   decimal.Decimal
}

// TransferOf extracts the transfer carried by tx. It returns false for records with neither
// a payment nor an asset transfer.
func TransferOf(tx *models.RawTransaction, decimals *DecimalsCache) (Transfer, bool) {
	switch {
	case tx.Payment != nil:
		return Transfer{
			Type:     types.TxTypePayment,
			AssetKey: types.NativeAssetKey,
			Receiver: tx.Payment.Receiver,
			Amount:   decimal.NewFromUint64(tx.Payment.Amount).Shift(-algoDecimals),
		}, true
	case tx.AssetTransfer != nil:
		return Transfer{
			Type:     types.TxTypeAssetTransfer,
			AssetKey: tx.AssetTransfer.AssetKey,
			Receiver: tx.AssetTransfer.Receiver,
			Amount:   decimal.NewFromUint64(tx.AssetTransfer.Amount).Shift(-int32(decimals.Decimals(tx.AssetTransfer.AssetKey))),
		}, true
	default:
		return Transfer{}, false
	}
}

// FeeAlgo converts a micro-unit fee to ALGO
func FeeAlgo(fee uint64) decimal.Decimal {
	return decimal.NewFromUint64(fee).Shift(-algoDecimals)
}

// ParseLotEvents normalizes transactions into lot events for the owned wallet set.
// Events are returned in source order. Transfers between two owned wallets are skipped.
// Grouped AMM app calls are not paired into swaps; each transfer leg stands on its own.
func ParseLotEvents(txns []models.RawTransaction, owned WalletSet, prices models.PriceMap, decimals *DecimalsCache) []LotEvent {
	algoPrice := decimal.Zero
	if p := prices.Lookup(types.NativeAssetKey); p != nil {
		algoPrice = decimal.NewFromFloat(*p)
	}

	events := make([]LotEvent, 0, len(txns))
	for i := range txns {
		tx := &txns[i]
		transfer, ok := TransferOf(tx, decimals)
		if !ok {
			continue
		}

		senderOwned := owned.Contains(tx.Sender)
		receiverOwned := owned.Contains(transfer.Receiver)
		if senderOwned && receiverOwned {
			continue
		}

		var unitPrice *decimal.Decimal
		if p := prices.Lookup(transfer.AssetKey); p != nil {
			d := decimal.NewFromFloat(*p)
			unitPrice = &d
		}

		event := LotEvent{
			TxID:         tx.ID,
			Timestamp:    tx.Timestamp,
			AssetKey:     transfer.AssetKey,
			Amount:       transfer.Amount,
			UnitPriceUSD: unitPrice,
			FeeUSD:       decimal.Zero,
		}

		switch {
		case senderOwned:
			event.Side = types.SideSell
			event.Wallet = tx.Sender
			event.FeeUSD = FeeAlgo(tx.Fee).Mul(algoPrice)
		case receiverOwned:
			event.Side = types.SideBuy
			event.Wallet = transfer.Receiver
		default:
			continue
		}

		events = append(events, event)
	}

	return events
}

// FilterByWallet returns the events attributed to wallet, preserving order
func FilterByWallet(events []LotEvent, wallet string) []LotEvent {
	var out []LotEvent
	for _, e := range events {
		if e.Wallet == wallet {
			out = append(out, e)
		}
	}
	return out
}
