// Package scheduler drives the wallet x token x spender cross product through
// the chain client in bounded waves and collects the resulting records.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/JoeanSteinbock/address-approval-checker/internal/audit/discovery"
	"github.com/JoeanSteinbock/address-approval-checker/internal/audit/exposure"
	"github.com/JoeanSteinbock/address-approval-checker/internal/audit/tokenmeta"
	"github.com/JoeanSteinbock/address-approval-checker/internal/cache"
	"github.com/JoeanSteinbock/address-approval-checker/internal/chain"
	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
	"github.com/JoeanSteinbock/address-approval-checker/internal/input"
	"github.com/JoeanSteinbock/address-approval-checker/internal/metrics"
	"github.com/JoeanSteinbock/address-approval-checker/internal/tracing"
)

// DefaultBatchSize is the wave size used when none is configured.
const DefaultBatchSize = 3

// Progress receives one Advance per unit of work: a WorkItem in basic mode, a
// (wallet, token) pair in advanced mode.
type Progress interface {
	Start()
	Advance(action string)
	SetAction(action string)
	Report(force bool)
	Finish(action string)
}

// ProgressFactory builds the reporter once the total is known.
type ProgressFactory func(total int) Progress

type Config struct {
	Mode      model.Mode
	BatchSize int
	FromBlock uint64
	ToBlock   uint64 // 0 means the current head
}

// Outcome is what a run produced.
type Outcome struct {
	Mode    model.Mode
	Records []model.ApprovalRecord // successful items in scan order
	Window  *discovery.Window      // advanced mode only

	Units       int // progress units (items or pairs)
	Items       int // work items executed
	Recorded    int
	Failed      int
	ZeroSkipped int
	Canceled    bool
	Duration    time.Duration

	// DegradedTokens counts tokens whose metadata fell back to placeholders.
	DegradedTokens int
}

type Engine struct {
	client     chain.Client
	tokens     *tokenmeta.Resolver
	discoverer *discovery.Discoverer
	progress   ProgressFactory
	cfg        Config
	logger     *slog.Logger
	tracer     trace.Tracer
	nowFn      func() time.Time
}

func NewEngine(client chain.Client, cfg Config, progress ProgressFactory, logger *slog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Mode == "" {
		cfg.Mode = model.ModeBasic
	}
	if progress == nil {
		progress = func(int) Progress { return nopProgress{} }
	}
	return &Engine{
		client:     client,
		tokens:     tokenmeta.NewResolver(client, 0, logger),
		discoverer: discovery.New(client, logger),
		progress:   progress,
		cfg:        cfg,
		logger:     logger.With("component", "scheduler", "mode", cfg.Mode.String()),
		tracer:     tracing.Tracer("approval-checker/scheduler"),
		nowFn:      time.Now,
	}
}

// run holds the state of one Run call.
type run struct {
	*Engine
	balances *cache.Memo[*big.Int]
	tokenIn  map[common.Address]model.TokenInput
	out      *Outcome

	mu       sync.Mutex
	degraded map[common.Address]struct{}
}

// Run audits targets. Only setup failures are returned as errors; per-item
// failures are logged and counted. A canceled context stops scheduling new
// waves and returns what was collected so far.
func (e *Engine) Run(ctx context.Context, targets input.Targets) (*Outcome, error) {
	if err := targets.Validate(e.cfg.Mode); err != nil {
		return nil, err
	}

	ctx, span := e.tracer.Start(ctx, "audit.run", trace.WithAttributes(
		attribute.String("mode", e.cfg.Mode.String()),
		attribute.Int("wallets", len(targets.Wallets)),
		attribute.Int("tokens", len(targets.Tokens)),
		attribute.Int("spenders", len(targets.Spenders)),
		attribute.Int("batch_size", e.cfg.BatchSize),
	))

	start := e.nowFn()
	r := &run{
		Engine:   e,
		balances: cache.NewMemo[*big.Int](len(targets.Wallets) * len(targets.Tokens)),
		tokenIn:  make(map[common.Address]model.TokenInput, len(targets.Tokens)),
		out:      &Outcome{Mode: e.cfg.Mode, Records: []model.ApprovalRecord{}},
		degraded: make(map[common.Address]struct{}),
	}
	for _, t := range targets.Tokens {
		r.tokenIn[t.Address] = t
	}

	var err error
	if e.cfg.Mode == model.ModeAdvanced {
		err = r.runAdvanced(ctx, targets)
	} else {
		err = r.runBasic(ctx, targets)
	}
	r.out.Duration = e.nowFn().Sub(start)
	r.out.DegradedTokens = len(r.degraded)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.out.Canceled = true
		e.logger.Warn("audit run interrupted; returning partial results",
			"items", r.out.Items,
			"records", len(r.out.Records),
		)
		err = nil
	}
	span.SetAttributes(
		attribute.Int("records", len(r.out.Records)),
		attribute.Int("failed", r.out.Failed),
		attribute.Bool("canceled", r.out.Canceled),
	)
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	tokenHits, tokenMisses := e.tokens.Stats()
	balanceHits, balanceMisses := r.balances.Stats()
	e.logger.Info("audit run finished",
		"units", r.out.Units,
		"items", r.out.Items,
		"records", r.out.Recorded,
		"failed", r.out.Failed,
		"zero_allowance_skipped", r.out.ZeroSkipped,
		"degraded_tokens", r.out.DegradedTokens,
		"token_cache_hits", tokenHits,
		"token_cache_misses", tokenMisses,
		"balance_cache_hits", balanceHits,
		"balance_cache_misses", balanceMisses,
		"duration", r.out.Duration,
	)
	return r.out, nil
}

// basicItems enumerates token -> wallet -> spender.
func basicItems(targets input.Targets) []model.WorkItem {
	items := make([]model.WorkItem, 0, len(targets.Tokens)*len(targets.Wallets)*len(targets.Spenders))
	for _, t := range targets.Tokens {
		for _, w := range targets.Wallets {
			for _, s := range targets.Spenders {
				items = append(items, model.NewWorkItem(w, t.Address, s))
			}
		}
	}
	return items
}

// pairItems enumerates token -> wallet pairs awaiting discovery.
func pairItems(targets input.Targets) []model.WorkItem {
	pairs := make([]model.WorkItem, 0, len(targets.Tokens)*len(targets.Wallets))
	for _, t := range targets.Tokens {
		for _, w := range targets.Wallets {
			pairs = append(pairs, model.NewPairItem(w, t.Address))
		}
	}
	return pairs
}

func (r *run) runBasic(ctx context.Context, targets input.Targets) error {
	items := basicItems(targets)
	r.out.Units = len(items)

	p := r.progress(len(items))
	p.Start()
	defer p.Finish("完成")
	p.Report(true)

	_, err := r.execute(ctx, items, p, true)
	return err
}

func (r *run) runAdvanced(ctx context.Context, targets input.Targets) error {
	window, err := discovery.ResolveWindow(ctx, r.client, r.cfg.FromBlock, r.cfg.ToBlock)
	if err != nil {
		return err
	}
	r.out.Window = &window
	r.logger.Info("discovery window resolved", "from_block", window.From, "to_block", window.To)

	pairs := pairItems(targets)
	r.out.Units = len(pairs)

	p := r.progress(len(pairs))
	p.Start()
	defer p.Finish("完成")
	p.Report(true)

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runPair(ctx, pair, window, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) runPair(ctx context.Context, pair model.WorkItem, window discovery.Window, p Progress) (err error) {
	ctx, span := r.tracer.Start(ctx, "audit.pair", trace.WithAttributes(
		attribute.String("wallet", pair.Wallet.Hex()),
		attribute.String("token", pair.Token.Hex()),
	))
	defer func() { tracing.EndSpan(span, err) }()

	p.SetAction(fmt.Sprintf("扫描授权事件 %s / %s", shortHex(pair.Token), shortHex(pair.Wallet)))
	p.Report(false)

	spenders := r.discoverer.Spenders(ctx, pair.Wallet, pair.Token, window)
	span.SetAttributes(attribute.Int("spenders", len(spenders)))

	items := pair.Expand(spenders)
	_, err = r.execute(ctx, items, p, false)
	p.Advance(fmt.Sprintf("%s / %s: %d 个授权地址", shortHex(pair.Token), shortHex(pair.Wallet), len(spenders)))
	return err
}

// execute runs items in waves and folds the results into the outcome. With
// perItem set, progress advances once per item.
func (r *run) execute(ctx context.Context, items []model.WorkItem, p Progress, perItem bool) ([]model.ItemResult, error) {
	mode := r.cfg.Mode.String()
	onWave := func(index, size int) {
		metrics.WavesTotal.WithLabelValues(mode).Inc()
		r.logger.Debug("wave started", "wave", index, "size", size)
	}

	results, err := Waves(ctx, items, r.cfg.BatchSize, onWave, func(ctx context.Context, item model.WorkItem) model.ItemResult {
		res := r.process(ctx, item)
		if perItem {
			p.Advance(describe(res))
		}
		return res
	})

	for _, res := range results {
		r.collect(res)
	}
	return results, err
}

func (r *run) collect(res model.ItemResult) {
	r.out.Items++
	metrics.WorkItemsTotal.WithLabelValues(r.cfg.Mode.String(), res.Outcome()).Inc()

	switch {
	case res.Succeeded():
		r.out.Recorded++
		r.out.Records = append(r.out.Records, *res.Record)
		metrics.ApprovalRecordsTotal.Inc()
		if res.Record.IsInfiniteApproval {
			metrics.InfiniteApprovalsTotal.Inc()
		}
	case res.Skip == model.SkipZeroAllowance:
		r.out.ZeroSkipped++
	case res.Skip == model.SkipCanceled:
	case res.Failed():
		r.out.Failed++
	}
}

// process resolves one (wallet, token, spender) item. Errors never escape;
// they become a skipped result.
func (r *run) process(ctx context.Context, item model.WorkItem) model.ItemResult {
	start := r.nowFn()
	defer func() {
		metrics.WorkItemDuration.WithLabelValues(r.cfg.Mode.String()).Observe(r.nowFn().Sub(start).Seconds())
	}()

	if !item.Expanded() {
		return model.Skip(item, model.SkipRPCError, fmt.Errorf("work item %s has no spender", item))
	}

	in, ok := r.tokenIn[item.Token]
	if !ok {
		in = model.TokenInput{Address: item.Token}
	}
	info := r.tokens.Resolve(ctx, in)
	if info.Degraded {
		r.noteDegraded(item.Token)
	}

	allowance, err := r.client.Allowance(ctx, item.Token, item.Wallet, *item.Spender)
	if err != nil {
		return r.fail(ctx, item, "allowance", err)
	}
	if r.cfg.Mode == model.ModeAdvanced && allowance.Sign() == 0 {
		return model.Skip(item, model.SkipZeroAllowance, nil)
	}

	balance, err := r.balance(ctx, item.Wallet, item.Token)
	if err != nil {
		return r.fail(ctx, item, "balanceOf", err)
	}

	return model.Succeed(item, exposure.NewRecord(item, info, allowance, balance))
}

func (r *run) noteDegraded(token common.Address) {
	r.mu.Lock()
	r.degraded[token] = struct{}{}
	r.mu.Unlock()
}

func (r *run) balance(ctx context.Context, wallet, token common.Address) (*big.Int, error) {
	key := strings.ToLower(wallet.Hex() + token.Hex())
	v, _, err := r.balances.GetOrLoad(ctx, key, func(ctx context.Context) (*big.Int, error) {
		return r.client.BalanceOf(ctx, token, wallet)
	})
	return v, err
}

func (r *run) fail(ctx context.Context, item model.WorkItem, call string, err error) model.ItemResult {
	if ctx.Err() != nil {
		return model.Skip(item, model.SkipCanceled, err)
	}
	r.logger.Warn("work item failed; skipping",
		"wallet", item.Wallet.Hex(),
		"token", item.Token.Hex(),
		"spender", item.Key().Spender.Hex(),
		"call", call,
		"error", err,
	)
	return model.Skip(item, model.SkipRPCError, err)
}

func describe(res model.ItemResult) string {
	action := fmt.Sprintf("%s / %s → %s", shortHex(res.Item.Token), shortHex(res.Item.Wallet), shortHex(res.Item.Key().Spender))
	if res.Record != nil {
		action = fmt.Sprintf("%s %s → %s", res.Record.TokenSymbol, shortHex(res.Item.Wallet), shortHex(res.Item.Key().Spender))
	}
	if res.Failed() {
		action += " (失败)"
	}
	return action
}

func shortHex(a common.Address) string {
	h := a.Hex()
	return h[:6] + "…" + h[len(h)-4:]
}

type nopProgress struct{}

func (nopProgress) Start()           {}
func (nopProgress) Advance(string)   {}
func (nopProgress) SetAction(string) {}
func (nopProgress) Report(bool)      {}
func (nopProgress) Finish(string)    {}
