package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReservedSource(t *testing.T) {
	for _, source := range []string{SourceDailyLogin, SourceAdminAdjustment, SourceFirstPublicPrompt, " Profile_Completion "} {
		require.True(t, ReservedSource(source), source)
	}
	for _, source := range []string{SourcePurchase, "prompt_unlock", ""} {
		require.False(t, ReservedSource(source), source)
	}
}
