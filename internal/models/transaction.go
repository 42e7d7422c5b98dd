package models

// PaymentTransfer is the payment part of a native ALGO transaction
type PaymentTransfer struct {
	Receiver string `json:"receiver"`
	Amount   uint64 `json:"amount"` // microAlgos
}

// AssetTransfer is the asset-transfer part of an ASA transaction
type AssetTransfer struct {
	Receiver string `json:"receiver"`
	Amount   uint64 `json:"amount"` // raw base units
	AssetKey string `json:"assetKey"`
}

// RawTransaction is one ledger transaction touching a tracked wallet.
// Exactly one of Payment and AssetTransfer is set for transfer records.
type RawTransaction struct {
	ID            string           `json:"id"`
	Sender        string           `json:"sender"`
	Fee           uint64           `json:"fee"`       // microAlgos
	Timestamp     int64            `json:"timestamp"` // unix seconds
	Group         string           `json:"group,omitempty"`
	Note          string           `json:"note,omitempty"` // base64 as returned by the indexer
	Payment       *PaymentTransfer `json:"payment,omitempty"`
	AssetTransfer *AssetTransfer   `json:"assetTransfer,omitempty"`
}

// Receiver returns the receiver of whichever transfer is present
func (t *RawTransaction) Receiver() string {
	switch {
	case t.Payment != nil:
		return t.Payment.Receiver
	case t.AssetTransfer != nil:
		return t.AssetTransfer.Receiver
	default:
		return ""
	}
}
