package model

import (
	"github.com/ethereum/go-ethereum/common"
)

// InfiniteSymbol renders an allowance equal to 2^256-1.
const InfiniteSymbol = "∞"

// RecordKey is the (wallet, token, spender) identity of an approval.
type RecordKey struct {
	Wallet  common.Address
	Token   common.Address
	Spender common.Address
}

// ApprovalRecord is the unit of output. It is built once, fully populated,
// and never mutated afterwards. Raw amounts are base-10 uint256 strings.
type ApprovalRecord struct {
	Wallet      common.Address
	Token       common.Address
	TokenSymbol string
	Spender     common.Address

	Allowance          string // decimal string, or InfiniteSymbol
	RawAllowance       string
	IsInfiniteApproval bool

	Balance    string
	RawBalance string

	ExposedAmount    string
	RawExposedAmount string

	Price           *float64
	ExposedValueUSD *float64
}

// Key returns the record's identity.
func (r ApprovalRecord) Key() RecordKey {
	return RecordKey{Wallet: r.Wallet, Token: r.Token, Spender: r.Spender}
}

// HasValue reports whether the USD exposure is known.
func (r ApprovalRecord) HasValue() bool {
	return r.ExposedValueUSD != nil
}

// ApprovalEvent is the part of an Approval log the engine consumes.
type ApprovalEvent struct {
	Owner       common.Address
	Spender     common.Address
	BlockNumber uint64
	TxHash      common.Hash
}
