package model

import (
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
)

// UnknownSymbol is the placeholder symbol used when token metadata cannot be read.
const UnknownSymbol = "未知"

// DefaultDecimals is assumed when a token's decimals() call fails.
const DefaultDecimals uint8 = 18

// TokenInfo is resolved once per token address and shared read-only by every
// work item that references the token.
type TokenInfo struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	Price    *float64 // nil when the USD price is unknown
	Degraded bool     // metadata read failed; Symbol/Decimals are placeholders
}

// HasPrice reports whether a USD price is known for the token.
func (t TokenInfo) HasPrice() bool {
	return t.Price != nil
}

// TokenInput is a token as supplied by the caller, with an optional explicit price.
type TokenInput struct {
	Address common.Address
	Price   *float64
}

// PlaceholderToken builds the degraded metadata used when symbol/decimals reads fail.
// An explicitly supplied price is preserved.
func PlaceholderToken(in TokenInput) TokenInfo {
	return TokenInfo{
		Address:  in.Address,
		Symbol:   UnknownSymbol,
		Decimals: DefaultDecimals,
		Price:    in.Price,
		Degraded: true,
	}
}

// NormalizeSymbol trims and upper-cases a token symbol for comparisons.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// CleanSymbol drops control and formatting characters (tabs, newlines, ANSI
// escapes, bidi overrides) from an on-chain symbol and trims it.
func CleanSymbol(symbol string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, symbol))
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
