package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Mode selects how spenders are obtained for a run.
type Mode string

const (
	// ModeBasic checks a caller-supplied spender list.
	ModeBasic Mode = "basic"
	// ModeAdvanced discovers spenders from historical Approval events.
	ModeAdvanced Mode = "advanced"
)

func (m Mode) String() string {
	return string(m)
}

// WorkItem identifies one unit of on-chain work. Spender is nil for an
// advanced-mode pair that has not been expanded by discovery yet.
type WorkItem struct {
	Wallet  common.Address
	Token   common.Address
	Spender *common.Address
}

// NewWorkItem builds a fully specified (wallet, token, spender) item.
func NewWorkItem(wallet, token, spender common.Address) WorkItem {
	s := spender
	return WorkItem{Wallet: wallet, Token: token, Spender: &s}
}

// NewPairItem builds a (wallet, token) item whose spenders are still unknown.
func NewPairItem(wallet, token common.Address) WorkItem {
	return WorkItem{Wallet: wallet, Token: token}
}

// Expanded reports whether the spender has been resolved.
func (w WorkItem) Expanded() bool {
	return w.Spender != nil
}

// Expand returns one item per spender for a pair item.
func (w WorkItem) Expand(spenders []common.Address) []WorkItem {
	items := make([]WorkItem, 0, len(spenders))
	for _, s := range spenders {
		items = append(items, NewWorkItem(w.Wallet, w.Token, s))
	}
	return items
}

// Key returns the (wallet, token, spender) identity. Pair items use the zero spender.
func (w WorkItem) Key() RecordKey {
	k := RecordKey{Wallet: w.Wallet, Token: w.Token}
	if w.Spender != nil {
		k.Spender = *w.Spender
	}
	return k
}

func (w WorkItem) String() string {
	if w.Spender == nil {
		return fmt.Sprintf("%s/%s", w.Wallet.Hex(), w.Token.Hex())
	}
	return fmt.Sprintf("%s/%s/%s", w.Wallet.Hex(), w.Token.Hex(), w.Spender.Hex())
}
