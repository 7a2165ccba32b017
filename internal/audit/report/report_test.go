package report

import (
	"bytes"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
)

var (
	usdt = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func addr(i int) common.Address {
	return common.BigToAddress(big.NewInt(int64(i + 1)))
}

func record(wallet, token, spender common.Address, usd *float64, infinite bool) model.ApprovalRecord {
	r := model.ApprovalRecord{
		Wallet:             wallet,
		Token:              token,
		TokenSymbol:        "USDT",
		Spender:            spender,
		Allowance:          "10.0",
		Balance:            "5.0",
		ExposedAmount:      "5.0",
		IsInfiniteApproval: infinite,
		ExposedValueUSD:    usd,
	}
	if infinite {
		r.Allowance = model.InfiniteSymbol
	}
	return r
}

// syntheticRecords builds n records: every third has no USD value, every
// fifth is an infinite approval, and USD value grows with the index.
func syntheticRecords(n int) []model.ApprovalRecord {
	out := make([]model.ApprovalRecord, 0, n)
	for i := 0; i < n; i++ {
		var usd *float64
		if i%3 != 0 {
			usd = model.Float64Ptr(float64(i))
		}
		out = append(out, record(addr(i), usdt, addr(1000+i), usd, i%5 == 0))
	}
	return out
}

func TestAggregator_DedupFirstWins(t *testing.T) {
	agg := NewAggregator()

	first := record(addr(1), usdt, addr(2), model.Float64Ptr(10), false)
	second := record(addr(1), usdt, addr(2), model.Float64Ptr(99), true)
	other := record(addr(1), weth, addr(2), nil, false)

	assert.True(t, agg.Add(first))
	assert.False(t, agg.Add(second))
	agg.AddAll([]model.ApprovalRecord{other, second})

	recs := agg.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, 10.0, *recs[0].ExposedValueUSD)
	assert.Equal(t, weth, recs[1].Token)
	assert.Equal(t, 2, agg.Duplicates())
}

func TestAggregator_RecordsReturnsCopy(t *testing.T) {
	agg := NewAggregator()
	agg.Add(record(addr(1), usdt, addr(2), nil, false))

	recs := agg.Records()
	recs[0].TokenSymbol = "CHANGED"
	assert.Equal(t, "USDT", agg.Records()[0].TokenSymbol)
}

func TestSummarize(t *testing.T) {
	recs := []model.ApprovalRecord{
		record(addr(1), usdt, addr(10), model.Float64Ptr(100.25), true),
		record(addr(1), weth, addr(10), nil, false),
		record(addr(2), usdt, addr(11), model.Float64Ptr(0.1), false),
		record(addr(2), usdt, addr(12), model.Float64Ptr(0.2), true),
	}

	s := Summarize(recs)
	assert.Equal(t, 4, s.Records)
	assert.Equal(t, 2, s.Wallets)
	assert.Equal(t, 2, s.Tokens)
	assert.Equal(t, 3, s.Spenders)
	assert.Equal(t, 2, s.InfiniteApprovals)
	assert.Equal(t, 3, s.KnownValueCount)
	assert.Equal(t, 1, s.UnknownValueCount())
	assert.Equal(t, 100.55, s.TotalValueUSD)
}

func TestSummarize_NonFiniteValuesAreUnknown(t *testing.T) {
	recs := []model.ApprovalRecord{
		record(addr(1), usdt, addr(10), model.Float64Ptr(math.Inf(1)), true),
		record(addr(2), usdt, addr(11), model.Float64Ptr(math.NaN()), false),
		record(addr(3), usdt, addr(12), model.Float64Ptr(2), false),
	}

	var s Summary
	require.NotPanics(t, func() { s = Summarize(recs) })
	assert.Equal(t, 1, s.KnownValueCount)
	assert.Equal(t, 2, s.UnknownValueCount())
	assert.Equal(t, 2.0, s.TotalValueUSD)

	shown := SelectForDisplay(recs, 2)
	require.NotEmpty(t, shown)
	assert.Equal(t, addr(3), shown[0].Wallet)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, Summary{}, s)
}

func TestSelectForDisplay_UnderLimitShowsAll(t *testing.T) {
	recs := syntheticRecords(100)
	shown := SelectForDisplay(recs, 100)
	assert.Equal(t, recs, shown)
}

func TestSelectForDisplay_150Records(t *testing.T) {
	recs := syntheticRecords(150)
	shown := SelectForDisplay(recs, 100)

	require.LessOrEqual(t, len(shown), 100)

	// Top half by USD value, descending.
	assert.Equal(t, 149.0, *shown[0].ExposedValueUSD)
	for i := 1; i < 50; i++ {
		require.NotNil(t, shown[i].ExposedValueUSD)
		assert.GreaterOrEqual(t, *shown[i-1].ExposedValueUSD, *shown[i].ExposedValueUSD)
	}

	// Every infinite approval fits in the second half (30 of them).
	infinite := 0
	seen := map[model.RecordKey]bool{}
	for _, r := range shown {
		assert.False(t, seen[r.Key()], "duplicate %v", r.Key())
		seen[r.Key()] = true
		if r.IsInfiniteApproval {
			infinite++
		}
	}
	assert.Equal(t, 30, infinite)

	// Summary still reflects every record.
	s := Summarize(recs)
	assert.Equal(t, 150, s.Records)
	assert.Len(t, recs, 150, "input untouched")
}

func TestSelectForDisplay_CapsInfinites(t *testing.T) {
	recs := make([]model.ApprovalRecord, 0, 30)
	for i := 0; i < 30; i++ {
		recs = append(recs, record(addr(i), usdt, addr(500+i), nil, true))
	}

	shown := SelectForDisplay(recs, 10)
	require.Len(t, shown, 5, "half the limit for infinite approvals")
	for i, r := range shown {
		assert.Equal(t, addr(i), r.Wallet, "infinite approvals keep scan order")
	}
}

func TestSelectForDisplay_ValuedInfiniteNotRepeated(t *testing.T) {
	recs := []model.ApprovalRecord{
		record(addr(0), usdt, addr(10), model.Float64Ptr(1000), true),
		record(addr(1), usdt, addr(11), model.Float64Ptr(1), false),
		record(addr(2), usdt, addr(12), nil, true),
	}

	shown := SelectForDisplay(recs, 2)
	require.Len(t, shown, 2)
	assert.Equal(t, addr(0), shown[0].Wallet)
	assert.Equal(t, addr(2), shown[1].Wallet)
}

func TestRender(t *testing.T) {
	recs := []model.ApprovalRecord{
		record(addr(1), usdt, addr(10), model.Float64Ptr(5), true),
		record(addr(2), usdt, addr(11), nil, false),
	}
	var out bytes.Buffer
	err := Render(&out, recs, 3, Summarize(recs), RenderOptions{})
	require.NoError(t, err)

	text := out.String()
	lines := strings.Split(text, "\n")
	assert.True(t, strings.HasPrefix(lines[0], "钱包地址"))
	assert.Contains(t, lines[1], "∞")
	assert.Contains(t, lines[1], "$5.00")
	assert.Contains(t, lines[2], model.UnknownSymbol)
	assert.Contains(t, text, "仅显示 2 / 3 条重要记录")
	assert.Contains(t, text, "共 2 条授权记录 | 钱包: 2 | 代币: 1 | 授权地址: 2 | 无限授权: 1 | 已知风险总价值: $5.00 (1 条价格未知)")
	assert.NotContains(t, text, "\033[")
}

func TestRender_StripsControlCharactersFromSymbol(t *testing.T) {
	r := record(addr(1), usdt, addr(10), nil, false)
	r.TokenSymbol = "EV\tIL\x1b[31m\r\n"
	recs := []model.ApprovalRecord{r}

	var out bytes.Buffer
	require.NoError(t, Render(&out, recs, 1, Summarize(recs), RenderOptions{}))

	text := out.String()
	assert.Contains(t, text, "EVIL[31m")
	assert.NotContains(t, text, "\x1b")
	assert.NotContains(t, text, "\r")
	assert.Len(t, strings.Split(strings.TrimRight(text, "\n"), "\n"), 4)
}

func TestRender_ColorHighlightsInfinite(t *testing.T) {
	recs := []model.ApprovalRecord{
		record(addr(1), usdt, addr(10), nil, false),
		record(addr(2), usdt, addr(11), nil, true),
	}
	var out bytes.Buffer
	require.NoError(t, Render(&out, recs, 2, Summarize(recs), RenderOptions{Color: true}))

	lines := strings.Split(out.String(), "\n")
	assert.True(t, strings.HasPrefix(lines[0], colorBold))
	assert.False(t, strings.HasPrefix(lines[1], colorRed))
	assert.True(t, strings.HasPrefix(lines[2], colorRed))
	assert.True(t, strings.HasSuffix(lines[2], colorReset))
}

func TestRender_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, Render(&out, nil, 0, Summary{}, RenderOptions{}))
	assert.Contains(t, out.String(), "未发现授权记录")
}
