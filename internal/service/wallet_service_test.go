package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vestival/algorand-tracker/internal/errors"
	"github.com/vestival/algorand-tracker/internal/types"
)

const (
	zeroAddress  = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAY5HFKQ"
	otherAddress = "AAAQEAYEAUDAOCAJBIFQYDIOB4IBCEQTCQKRMFYYDENBWHA5DYP7MUPJQE"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{name: "zero address", address: zeroAddress, want: true},
		{name: "sequential key", address: otherAddress, want: true},
		{name: "bad checksum", address: strings.Replace(zeroAddress, "Y5HFKQ", "Y5HFKA", 1), want: false},
		{name: "too short", address: zeroAddress[:57], want: false},
		{name: "lowercase", address: strings.ToLower(otherAddress), want: false},
		{name: "not base32", address: strings.Repeat("1", 58), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidAddress(tt.address))
		})
	}
}

func newTestWalletService(repo *mockWalletRepo) *WalletService {
	svc := NewWalletService(repo)
	svc.now = func() time.Time { return time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC) }
	return svc
}

func serviceErrorCode(t *testing.T, err error) string {
	t.Helper()
	var svcErr *types.ServiceError
	require.True(t, errors.As(err, &svcErr), "expected a service error, got %v", err)
	return svcErr.Code
}

func TestWalletService_Link(t *testing.T) {
	repo := &mockWalletRepo{}
	svc := newTestWalletService(repo)
	label := "  Main  "

	view, err := svc.Link(context.Background(), "user-1", &LinkWalletInput{Address: " " + zeroAddress + " ", Label: &label})
	require.NoError(t, err)
	assert.Equal(t, zeroAddress, view.Address)
	require.NotNil(t, view.Label)
	assert.Equal(t, "Main", *view.Label)
	require.NotNil(t, view.VerifiedAt)

	require.Len(t, repo.audits, 1)
	assert.Equal(t, "wallet.link", repo.audits[0].Action)
	assert.Equal(t, zeroAddress, repo.audits[0].Metadata["address"])
}

func TestWalletService_RelinkUpdatesLabel(t *testing.T) {
	repo := &mockWalletRepo{}
	svc := newTestWalletService(repo)
	first, second := "old", "new"

	_, err := svc.Link(context.Background(), "user-1", &LinkWalletInput{Address: zeroAddress, Label: &first})
	require.NoError(t, err)
	_, err = svc.Link(context.Background(), "user-1", &LinkWalletInput{Address: zeroAddress, Label: &second})
	require.NoError(t, err)

	wallets, err := svc.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, "new", *wallets[0].Label)
}

func TestWalletService_LinkValidation(t *testing.T) {
	long := strings.Repeat("x", 65)
	tests := []struct {
		name     string
		input    *LinkWalletInput
		wantCode string
	}{
		{name: "missing body", input: nil, wantCode: apperrors.CodeInvalidInput},
		{name: "short address", input: &LinkWalletInput{Address: "ABC"}, wantCode: apperrors.CodeInvalidInput},
		{name: "long label", input: &LinkWalletInput{Address: zeroAddress, Label: &long}, wantCode: apperrors.CodeInvalidInput},
		{name: "checksum mismatch", input: &LinkWalletInput{Address: strings.Repeat("A", 58)}, wantCode: apperrors.CodeInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockWalletRepo{}
			_, err := newTestWalletService(repo).Link(context.Background(), "user-1", tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, serviceErrorCode(t, err))
			assert.Equal(t, 400, apperrors.GetHTTPStatusCode(err))
			assert.Empty(t, repo.wallets)
		})
	}
}

func TestWalletService_ListNewestFirst(t *testing.T) {
	repo := &mockWalletRepo{}
	svc := newTestWalletService(repo)

	_, err := svc.Link(context.Background(), "user-1", &LinkWalletInput{Address: zeroAddress})
	require.NoError(t, err)
	_, err = svc.Link(context.Background(), "user-1", &LinkWalletInput{Address: otherAddress})
	require.NoError(t, err)
	_, err = svc.Link(context.Background(), "user-2", &LinkWalletInput{Address: zeroAddress})
	require.NoError(t, err)

	wallets, err := svc.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, otherAddress, wallets[0].Address)
	assert.Nil(t, wallets[1].Label)
}

func TestWalletService_RepositoryFailure(t *testing.T) {
	repo := &mockWalletRepo{err: errors.New("connection refused")}

	_, err := newTestWalletService(repo).List(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list wallets")
}
