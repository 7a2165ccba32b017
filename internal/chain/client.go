package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks . Client

// Client abstracts the read-only chain access the audit engine needs.
// Implementations own timeouts, retries, and rate limiting; the engine treats
// every returned error as a recoverable per-item failure.
type Client interface {
	// Symbol returns the ERC-20 symbol of token.
	Symbol(ctx context.Context, token common.Address) (string, error)

	// Decimals returns the ERC-20 decimals of token.
	Decimals(ctx context.Context, token common.Address) (uint8, error)

	// BalanceOf returns owner's raw token balance.
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)

	// Allowance returns the raw amount spender may move on owner's behalf.
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)

	// ApprovalEvents returns Approval logs emitted by token with the given owner
	// in the inclusive block range [fromBlock, toBlock].
	ApprovalEvents(ctx context.Context, token, owner common.Address, fromBlock, toBlock uint64) ([]model.ApprovalEvent, error)

	// BlockNumber returns the current head block.
	BlockNumber(ctx context.Context) (uint64, error)
}
