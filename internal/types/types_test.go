package types

import (
	"testing"
)

func TestHistoryMode_IsValid(t *testing.T) {
	tests := []struct {
		mode HistoryMode
		want bool
	}{
		{HistoryModeSnapshots, true},
		{HistoryModeReconstructed, true},
		{HistoryMode(""), false},
		{HistoryMode("weekly"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := tt.mode.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Error(t *testing.T) {
	err := &ServiceError{Code: "NO_VERIFIED_WALLETS", Message: "no verified wallets linked"}
	if err.Error() != "no verified wallets linked" {
		t.Errorf("Error() = %q", err.Error())
	}
}
