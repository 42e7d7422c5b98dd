package service

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/vestival/algorand-tracker/internal/errors"
	"github.com/vestival/algorand-tracker/internal/logging"
	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

const (
	addressLength    = 58
	minAddressInput  = 30
	maxLabelLength   = 64
	publicKeyLength  = 32
	checksumLength   = 4
	walletLinkAction = "wallet.link"
)

var addressEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// WalletService links and lists a user's Algorand wallets
type WalletService struct {
	repo WalletRepository
	now  func() time.Time
}

// NewWalletService creates a new wallet service
func NewWalletService(repo WalletRepository) *WalletService {
	return &WalletService{repo: repo, now: time.Now}
}

// LinkWalletInput represents input for linking a wallet
type LinkWalletInput struct {
	Address string  `json:"address"`
	Label   *string `json:"label,omitempty"`
}

// WalletView is a linked wallet as returned to clients
type WalletView struct {
	ID         string     `json:"id"`
	Address    string     `json:"address"`
	Label      *string    `json:"label"`
	VerifiedAt *time.Time `json:"verifiedAt"`
}

// IsValidAddress reports whether address is a well-formed Algorand address:
// 58 base32 characters encoding a 32-byte public key and the last 4 bytes of
// its SHA-512/256 digest
func IsValidAddress(address string) bool {
	if len(address) != addressLength {
		return false
	}
	decoded, err := addressEncoding.DecodeString(address)
	if err != nil || len(decoded) != publicKeyLength+checksumLength {
		return false
	}
	digest := sha512.Sum512_256(decoded[:publicKeyLength])
	return bytes.Equal(decoded[publicKeyLength:], digest[len(digest)-checksumLength:])
}

// Link validates and links a wallet to the user. Relinking an address updates its label.
func (s *WalletService) Link(ctx context.Context, userID string, input *LinkWalletInput) (*WalletView, error) {
	if input == nil {
		return nil, &types.ServiceError{Code: apperrors.CodeInvalidInput, Message: "request body is required"}
	}

	address := strings.TrimSpace(input.Address)
	if len(address) < minAddressInput {
		return nil, &types.ServiceError{
			Code:    apperrors.CodeInvalidInput,
			Message: "address is too short",
			Details: map[string]interface{}{"field": "address"},
		}
	}

	var label *string
	if input.Label != nil {
		trimmed := strings.TrimSpace(*input.Label)
		if len(trimmed) > maxLabelLength {
			return nil, &types.ServiceError{
				Code:    apperrors.CodeInvalidInput,
				Message: fmt.Sprintf("label must be at most %d characters", maxLabelLength),
				Details: map[string]interface{}{"field": "label"},
			}
		}
		if trimmed != "" {
			label = &trimmed
		}
	}

	if !IsValidAddress(address) {
		return nil, &types.ServiceError{
			Code:    apperrors.CodeInvalidAddress,
			Message: "Invalid Algorand address",
			Details: map[string]interface{}{"address": address},
		}
	}

	now := s.now().UTC()
	wallet := &models.LinkedWallet{
		UserID:     userID,
		Address:    address,
		Label:      label,
		VerifiedAt: &now,
		CreatedAt:  now,
	}
	audit := &models.AuditLog{
		UserID:   userID,
		Action:   walletLinkAction,
		Metadata: map[string]interface{}{"address": address},
	}
	if err := s.repo.Link(ctx, wallet, audit); err != nil {
		return nil, fmt.Errorf("failed to link wallet: %w", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"userId":  userID,
		"address": address,
	}).Info("wallet linked")

	return toWalletView(wallet), nil
}

// List returns the user's linked wallets, newest first
func (s *WalletService) List(ctx context.Context, userID string) ([]*WalletView, error) {
	wallets, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	views := make([]*WalletView, 0, len(wallets))
	for _, w := range wallets {
		views = append(views, toWalletView(w))
	}
	return views, nil
}

// toWalletView uses the address as the id since (user, address) is the wallet's key
func toWalletView(w *models.LinkedWallet) *WalletView {
	return &WalletView{
		ID:         w.Address,
		Address:    w.Address,
		Label:      w.Label,
		VerifiedAt: w.VerifiedAt,
	}
}
