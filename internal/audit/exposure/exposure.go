// Package exposure turns raw allowance and balance readings into an
// ApprovalRecord. All amount arithmetic stays in integers; floating point is
// only used for the final USD value.
package exposure

import (
	"math"
	"math/big"
	"strings"

	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"

	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
)

// MaxUint256 is the infinite-approval sentinel, 2^256-1.
var MaxUint256 = new(big.Int).Set(gethmath.MaxBig256)

// IsInfinite reports whether raw is exactly the infinite sentinel.
func IsInfinite(raw *big.Int) bool {
	return raw != nil && raw.Cmp(gethmath.MaxBig256) == 0
}

// Result is the exposure of one (wallet, token, spender) approval.
type Result struct {
	RawAllowance *big.Int
	RawBalance   *big.Int
	RawExposed   *big.Int
	IsInfinite   bool

	Allowance     string
	Balance       string
	ExposedAmount string

	// ExposedValueUSD is nil when price is unknown.
	ExposedValueUSD *float64
}

// Calculate computes exposure = min(allowance, balance), or balance for an
// infinite allowance. Nil amounts are treated as zero. The inputs are not
// modified.
func Calculate(rawAllowance, rawBalance *big.Int, decimals uint8, price *float64) Result {
	allowance := orZero(rawAllowance)
	balance := orZero(rawBalance)

	infinite := IsInfinite(allowance)
	exposed := balance
	if !infinite && allowance.Cmp(balance) < 0 {
		exposed = allowance
	}

	r := Result{
		RawAllowance:  new(big.Int).Set(allowance),
		RawBalance:    new(big.Int).Set(balance),
		RawExposed:    new(big.Int).Set(exposed),
		IsInfinite:    infinite,
		Balance:       FormatUnits(balance, decimals),
		ExposedAmount: FormatUnits(exposed, decimals),
	}
	if infinite {
		r.Allowance = model.InfiniteSymbol
	} else {
		r.Allowance = FormatUnits(allowance, decimals)
	}
	if price != nil {
		if v, ok := USDValue(exposed, decimals, *price); ok {
			r.ExposedValueUSD = &v
		}
	}
	return r
}

// USDValue converts a raw amount to a float in token units and multiplies it
// by a unit price. ok is false when the price or the product is not a finite
// number; the value is then unknown.
func USDValue(raw *big.Int, decimals uint8, price float64) (float64, bool) {
	if !finite(price) {
		return 0, false
	}
	amount, _ := decimal.NewFromBigInt(orZero(raw), -int32(decimals)).Float64()
	v := amount * price
	if !finite(v) {
		return 0, false
	}
	return v, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// FormatUnits renders raw base units as a decimal string: trailing fractional
// zeros are trimmed but at least one fractional digit is kept
// (500000000000000000000 @18 -> "500.0"). With zero decimals the integer is
// returned as is.
func FormatUnits(raw *big.Int, decimals uint8) string {
	v := orZero(raw)
	if decimals == 0 {
		return v.String()
	}
	s := decimal.NewFromBigInt(v, -int32(decimals)).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// NewRecord assembles the immutable record for a resolved work item.
func NewRecord(item model.WorkItem, token model.TokenInfo, rawAllowance, rawBalance *big.Int) model.ApprovalRecord {
	r := Calculate(rawAllowance, rawBalance, token.Decimals, token.Price)

	spender := item.Key().Spender
	var price *float64
	if token.Price != nil {
		p := *token.Price
		price = &p
	}
	return model.ApprovalRecord{
		Wallet:             item.Wallet,
		Token:              item.Token,
		TokenSymbol:        token.Symbol,
		Spender:            spender,
		Allowance:          r.Allowance,
		RawAllowance:       r.RawAllowance.String(),
		IsInfiniteApproval: r.IsInfinite,
		Balance:            r.Balance,
		RawBalance:         r.RawBalance.String(),
		ExposedAmount:      r.ExposedAmount,
		RawExposedAmount:   r.RawExposed.String(),
		Price:              price,
		ExposedValueUSD:    r.ExposedValueUSD,
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
