package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemResult_Outcome(t *testing.T) {
	item := NewWorkItem(testWallet, testToken, testSpender)

	ok := Succeed(item, ApprovalRecord{Wallet: testWallet})
	assert.True(t, ok.Succeeded())
	assert.False(t, ok.Failed())
	assert.Equal(t, "recorded", ok.Outcome())

	failed := Skip(item, SkipRPCError, errors.New("timeout"))
	assert.False(t, failed.Succeeded())
	assert.True(t, failed.Failed())
	assert.Equal(t, "rpc_error", failed.Outcome())

	zero := Skip(item, SkipZeroAllowance, nil)
	assert.False(t, zero.Failed())
	assert.Equal(t, "zero_allowance", zero.Outcome())

	assert.Equal(t, "empty", ItemResult{Item: item}.Outcome())
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "basic", ModeBasic.String())
	assert.Equal(t, "advanced", ModeAdvanced.String())
}
