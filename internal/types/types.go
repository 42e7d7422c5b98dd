// Package types provides common type definitions for the algorand tracker system.
package types

// NativeAssetKey is the asset key used for the chain's native coin.
const NativeAssetKey = "ALGO"

// MicroAlgosPerAlgo converts integer fee and payment amounts to ALGO.
const MicroAlgosPerAlgo = 1_000_000

// AccountingMethod identifies the cost-basis method used for a snapshot
type AccountingMethod string

const (
	// MethodFIFO is first-in-first-out lot matching
	MethodFIFO AccountingMethod = "FIFO"
)

// Side represents the direction of a lot event
type Side string

const (
	// SideBuy is an acquisition into an owned wallet
	SideBuy Side = "buy"
	// SideSell is a disposal out of an owned wallet
	SideSell Side = "sell"
)

// TransactionDirection represents a transfer relative to the owned wallet set
type TransactionDirection string

const (
	// DirectionIn means only the receiver is owned
	DirectionIn TransactionDirection = "in"
	// DirectionOut means only the sender is owned
	DirectionOut TransactionDirection = "out"
	// DirectionSelf means both sides are owned
	DirectionSelf TransactionDirection = "self"
)

// TransactionType classifies a transfer record
type TransactionType string

const (
	// TxTypePayment is a native ALGO payment
	TxTypePayment TransactionType = "payment"
	// TxTypeAssetTransfer is an ASA transfer
	TxTypeAssetTransfer TransactionType = "asset-transfer"
)

// Protocol names a DeFi protocol
type Protocol string

const (
	ProtocolTinyman Protocol = "Tinyman"
	ProtocolFolks   Protocol = "Folks Finance"
	ProtocolReti    Protocol = "Reti"
)

// PositionType classifies a DeFi position
type PositionType string

const (
	PositionLP       PositionType = "lp"
	PositionSupplied PositionType = "supplied"
	PositionBorrowed PositionType = "borrowed"
	PositionStaked   PositionType = "staked"
)

// HistoryMode selects how the portfolio history series is produced
type HistoryMode string

const (
	// HistoryModeSnapshots uses persisted snapshot totals, one point per day
	HistoryModeSnapshots HistoryMode = "snapshots"
	// HistoryModeReconstructed replays transactions backward from the latest snapshot
	HistoryModeReconstructed HistoryMode = "reconstructed"
)

// IsValid reports whether m is a known history mode
func (m HistoryMode) IsValid() bool {
	return m == HistoryModeSnapshots || m == HistoryModeReconstructed
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
