// Package report aggregates approval records, picks the subset shown in the
// terminal, and renders the result table.
package report

import (
	"math"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
)

// DefaultDisplayLimit is the number of records shown before the display
// policy starts selecting.
const DefaultDisplayLimit = 100

// Aggregator collects records in arrival order, dropping repeats of a
// (wallet, token, spender) key; the first record wins.
type Aggregator struct {
	mu      sync.Mutex
	records []model.ApprovalRecord
	seen    map[model.RecordKey]struct{}
	dropped int
}

func NewAggregator() *Aggregator {
	return &Aggregator{seen: make(map[model.RecordKey]struct{})}
}

// Add appends rec unless its key was already seen. It reports whether the
// record was kept.
func (a *Aggregator) Add(rec model.ApprovalRecord) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := rec.Key()
	if _, dup := a.seen[k]; dup {
		a.dropped++
		return false
	}
	a.seen[k] = struct{}{}
	a.records = append(a.records, rec)
	return true
}

func (a *Aggregator) AddAll(recs []model.ApprovalRecord) {
	for _, r := range recs {
		a.Add(r)
	}
}

// Records returns a copy of the collected records in arrival order.
func (a *Aggregator) Records() []model.ApprovalRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.ApprovalRecord, len(a.records))
	copy(out, a.records)
	return out
}

// Duplicates is the number of records rejected by Add.
func (a *Aggregator) Duplicates() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Summary is computed over the complete record set, never the displayed subset.
type Summary struct {
	Records           int
	Wallets           int
	Tokens            int
	Spenders          int
	InfiniteApprovals int
	KnownValueCount   int
	TotalValueUSD     float64
}

// UnknownValueCount is the number of records without a USD value.
func (s Summary) UnknownValueCount() int {
	return s.Records - s.KnownValueCount
}

func Summarize(records []model.ApprovalRecord) Summary {
	wallets := make(map[common.Address]struct{})
	tokens := make(map[common.Address]struct{})
	spenders := make(map[common.Address]struct{})
	total := decimal.Zero

	s := Summary{Records: len(records)}
	for _, r := range records {
		wallets[r.Wallet] = struct{}{}
		tokens[r.Token] = struct{}{}
		spenders[r.Spender] = struct{}{}
		if r.IsInfiniteApproval {
			s.InfiniteApprovals++
		}
		if v, ok := knownValue(r); ok {
			s.KnownValueCount++
			total = total.Add(decimal.NewFromFloat(v))
		}
	}
	s.Wallets = len(wallets)
	s.Tokens = len(tokens)
	s.Spenders = len(spenders)
	s.TotalValueUSD, _ = total.Float64()
	return s
}

// SelectForDisplay returns the records to print. At or under limit every
// record is shown in scan order. Above it, the top limit/2 records by USD
// value come first, followed by up to limit/2 infinite approvals not already
// picked, in scan order. The input is not modified.
func SelectForDisplay(records []model.ApprovalRecord, limit int) []model.ApprovalRecord {
	if limit <= 0 {
		limit = DefaultDisplayLimit
	}
	if len(records) <= limit {
		out := make([]model.ApprovalRecord, len(records))
		copy(out, records)
		return out
	}
	half := limit / 2
	if half == 0 {
		half = 1
	}

	valued := make([]int, 0, len(records))
	for i, r := range records {
		if _, ok := knownValue(r); ok {
			valued = append(valued, i)
		}
	}
	sort.SliceStable(valued, func(a, b int) bool {
		return *records[valued[a]].ExposedValueUSD > *records[valued[b]].ExposedValueUSD
	})
	if len(valued) > half {
		valued = valued[:half]
	}

	out := make([]model.ApprovalRecord, 0, limit)
	picked := make(map[model.RecordKey]struct{}, limit)
	for _, i := range valued {
		out = append(out, records[i])
		picked[records[i].Key()] = struct{}{}
	}

	infinite := 0
	for _, r := range records {
		if len(out) >= limit || infinite >= half {
			break
		}
		if !r.IsInfiniteApproval {
			continue
		}
		if _, dup := picked[r.Key()]; dup {
			continue
		}
		out = append(out, r)
		picked[r.Key()] = struct{}{}
		infinite++
	}
	return out
}

// knownValue returns the record's USD value. Values that are not finite
// numbers count as unknown.
func knownValue(r model.ApprovalRecord) (float64, bool) {
	if !r.HasValue() {
		return 0, false
	}
	v := *r.ExposedValueUSD
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
