package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/JoeanSteinbock/address-approval-checker/internal/chain"
	"github.com/JoeanSteinbock/address-approval-checker/internal/chain/evm/rpc"
	"github.com/JoeanSteinbock/address-approval-checker/internal/chain/ratelimit"
	"github.com/JoeanSteinbock/address-approval-checker/internal/circuitbreaker"
	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
	"github.com/JoeanSteinbock/address-approval-checker/internal/metrics"
	"github.com/JoeanSteinbock/address-approval-checker/internal/retry"
)

// Options tune the adapter's transport behaviour.
type Options struct {
	Timeout            time.Duration
	RateLimitRPS       float64
	RateLimitBurst     int
	RetryMaxAttempts   int
	BreakerFailures    int
	BreakerOpenTimeout time.Duration
	// LogChunkBlocks splits eth_getLogs windows; 0 queries the window at once.
	LogChunkBlocks uint64
}

// Adapter implements chain.Client against an EVM JSON-RPC endpoint.
type Adapter struct {
	client   rpc.RPCClient
	limiter  *ratelimit.Limiter
	breaker  *circuitbreaker.Breaker
	retry    retry.Policy
	logChunk uint64
	logger   *slog.Logger
}

var _ chain.Client = (*Adapter)(nil)

func NewAdapter(rpcURL string, opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return newAdapter(rpc.NewClient(rpcURL, opts.Timeout, logger), endpointLabel(rpcURL), opts, logger)
}

func newAdapter(client rpc.RPCClient, endpoint string, opts Options, logger *slog.Logger) *Adapter {
	log := logger.With("component", "evm_adapter", "endpoint", endpoint)
	return &Adapter{
		client:  client,
		limiter: ratelimit.NewLimiter(opts.RateLimitRPS, opts.RateLimitBurst, endpoint),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: opts.BreakerFailures,
			OpenTimeout:      opts.BreakerOpenTimeout,
			OnStateChange: func(from, to circuitbreaker.State) {
				metrics.RPCBreakerTransitions.WithLabelValues(from.String(), to.String()).Inc()
				log.Warn("rpc circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		}),
		retry:    retry.Policy{MaxAttempts: opts.RetryMaxAttempts},
		logChunk: opts.LogChunkBlocks,
		logger:   log,
	}
}

func (a *Adapter) Symbol(ctx context.Context, token common.Address) (string, error) {
	data, err := a.callContract(ctx, "symbol", token, packSymbol)
	if err != nil {
		return "", chain.NewCallError("symbol", token, err)
	}
	symbol, err := unpackSymbol(data)
	if err != nil {
		return "", chain.NewCallError("symbol", token, err)
	}
	return model.CleanSymbol(symbol), nil
}

func (a *Adapter) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	data, err := a.callContract(ctx, "decimals", token, packDecimals)
	if err != nil {
		return 0, chain.NewCallError("decimals", token, err)
	}
	decimals, err := unpackDecimals(data)
	if err != nil {
		return 0, chain.NewCallError("decimals", token, err)
	}
	return decimals, nil
}

func (a *Adapter) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := a.callContract(ctx, "balanceOf", token, func() ([]byte, error) {
		return packBalanceOf(owner)
	})
	if err != nil {
		return nil, chain.NewCallError("balanceOf", token, err)
	}
	balance, err := unpackUint256("balanceOf", data)
	if err != nil {
		return nil, chain.NewCallError("balanceOf", token, err)
	}
	return balance, nil
}

func (a *Adapter) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data, err := a.callContract(ctx, "allowance", token, func() ([]byte, error) {
		return packAllowance(owner, spender)
	})
	if err != nil {
		return nil, chain.NewCallError("allowance", token, err)
	}
	allowance, err := unpackUint256("allowance", data)
	if err != nil {
		return nil, chain.NewCallError("allowance", token, err)
	}
	return allowance, nil
}

func (a *Adapter) BlockNumber(ctx context.Context) (uint64, error) {
	var head uint64
	err := a.do(ctx, "eth_blockNumber", func(ctx context.Context) error {
		n, err := a.client.BlockNumber(ctx)
		if err != nil {
			return err
		}
		head = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("get head block: %w", err)
	}
	return head, nil
}

// ApprovalEvents replays Approval logs for (token, owner) in [fromBlock, toBlock].
// Logs marked removed or with fewer than three topics are skipped.
func (a *Adapter) ApprovalEvents(ctx context.Context, token, owner common.Address, fromBlock, toBlock uint64) ([]model.ApprovalEvent, error) {
	if toBlock < fromBlock {
		return []model.ApprovalEvent{}, nil
	}

	topics := [][]string{
		{ApprovalTopic.Hex()},
		{addressTopic(owner).Hex()},
	}

	events := make([]model.ApprovalEvent, 0)
	for start := fromBlock; start <= toBlock; {
		end := toBlock
		if a.logChunk > 0 && end-start >= a.logChunk {
			end = start + a.logChunk - 1
		}

		filter := rpc.LogFilter{
			Address:   token.Hex(),
			FromBlock: rpc.FormatBlock(start),
			ToBlock:   rpc.FormatBlock(end),
			Topics:    topics,
		}
		var logs []*rpc.Log
		err := a.do(ctx, "eth_getLogs", func(ctx context.Context) error {
			got, err := a.client.GetLogs(ctx, filter)
			if err != nil {
				return err
			}
			logs = got
			return nil
		})
		if err != nil {
			return nil, chain.NewQueryError(token, start, end, err)
		}

		for _, l := range logs {
			if ev, ok := decodeApproval(l); ok {
				events = append(events, ev)
			}
		}

		if end == toBlock {
			break
		}
		start = end + 1
	}

	a.logger.Debug("approval events fetched",
		"token", token.Hex(),
		"owner", owner.Hex(),
		"from_block", fromBlock,
		"to_block", toBlock,
		"count", len(events),
	)
	return events, nil
}

func decodeApproval(l *rpc.Log) (model.ApprovalEvent, bool) {
	if l == nil || l.Removed || len(l.Topics) < 3 {
		return model.ApprovalEvent{}, false
	}
	if !strings.EqualFold(l.Topics[0], ApprovalTopic.Hex()) {
		return model.ApprovalEvent{}, false
	}
	block, err := rpc.ParseQuantity(l.BlockNumber)
	if err != nil {
		block = 0
	}
	return model.ApprovalEvent{
		Owner:       common.HexToAddress(l.Topics[1]),
		Spender:     common.HexToAddress(l.Topics[2]),
		BlockNumber: block,
		TxHash:      common.HexToHash(l.TransactionHash),
	}, true
}

func (a *Adapter) callContract(ctx context.Context, method string, to common.Address, pack func() ([]byte, error)) ([]byte, error) {
	input, err := pack()
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := rpc.CallMsg{To: to.Hex(), Data: hexutil.Encode(input)}

	var out []byte
	err = a.do(ctx, method, func(ctx context.Context) error {
		data, err := a.client.Call(ctx, msg, rpc.BlockTagLatest)
		if err != nil {
			return err
		}
		out = data
		return nil
	})
	return out, err
}

// do runs one RPC through limiter, breaker, and retry policy and records metrics.
func (a *Adapter) do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	start := time.Now()
	policy := a.retry
	policy.OnRetry = func(attempt int, decision retry.Decision, err error) {
		metrics.RPCRetries.WithLabelValues(method).Inc()
		a.logger.Debug("rpc call failed; retrying",
			"method", method,
			"attempt", attempt,
			"classification_reason", decision.Reason,
			"error", err,
		)
	}

	err := policy.Do(ctx, func(ctx context.Context) error {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		return a.breaker.Do(func() error { return fn(ctx) }, isEndpointFailure)
	})

	ratelimit.RecordRPCCall(method, err)
	metrics.RPCCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	return err
}

// isEndpointFailure reports whether err says something about endpoint health.
// Reverts and decode failures are answers from a healthy node.
func isEndpointFailure(err error) bool {
	return retry.Classify(err).IsTransient()
}

// endpointLabel strips credentials and paths (API keys often live there) from
// an RPC URL for use in logs and metric labels.
func endpointLabel(rpcURL string) string {
	raw := strings.TrimSpace(rpcURL)
	if i := strings.Index(raw, "://"); i >= 0 {
		raw = raw[i+3:]
	}
	if i := strings.LastIndex(raw, "@"); i >= 0 {
		raw = raw[i+1:]
	}
	if i := strings.IndexAny(raw, "/?"); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "unknown"
	}
	return raw
}
