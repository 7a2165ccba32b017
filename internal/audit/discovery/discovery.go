// Package discovery finds the spenders a wallet has ever approved for a token
// by replaying Approval logs over a block window.
package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/JoeanSteinbock/address-approval-checker/internal/chain"
	"github.com/JoeanSteinbock/address-approval-checker/internal/metrics"
)

// Window is an inclusive block range.
type Window struct {
	From uint64
	To   uint64
}

func (w Window) Empty() bool {
	return w.To < w.From
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d]", w.From, w.To)
}

// ResolveWindow fixes the discovery window for a run. A zero to means the
// current head block.
func ResolveWindow(ctx context.Context, client chain.Client, from, to uint64) (Window, error) {
	if to != 0 {
		if to < from {
			return Window{}, fmt.Errorf("invalid block window: to %d < from %d", to, from)
		}
		return Window{From: from, To: to}, nil
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return Window{}, fmt.Errorf("resolve discovery window: %w", err)
	}
	return Window{From: from, To: head}, nil
}

type Discoverer struct {
	client chain.Client
	logger *slog.Logger
}

func New(client chain.Client, logger *slog.Logger) *Discoverer {
	return &Discoverer{
		client: client,
		logger: logger.With("component", "discovery"),
	}
}

// Spenders returns the distinct spenders of Approval events emitted by token
// with owner wallet inside window, in first-seen order. A failed log query is
// logged and yields an empty set so other pairs can continue.
func (d *Discoverer) Spenders(ctx context.Context, wallet, token common.Address, window Window) []common.Address {
	if window.Empty() {
		metrics.DiscoveryQueriesTotal.WithLabelValues("empty_window").Inc()
		return []common.Address{}
	}

	events, err := d.client.ApprovalEvents(ctx, token, wallet, window.From, window.To)
	if err != nil {
		metrics.DiscoveryQueriesTotal.WithLabelValues("failed").Inc()
		d.logger.Warn("approval log query failed; treating as no spenders",
			"wallet", wallet.Hex(),
			"token", token.Hex(),
			"window", window.String(),
			"error", err,
		)
		return []common.Address{}
	}
	metrics.DiscoveryQueriesTotal.WithLabelValues("ok").Inc()

	spenders := make([]common.Address, 0, len(events))
	seen := make(map[common.Address]struct{}, len(events))
	for _, ev := range events {
		if _, dup := seen[ev.Spender]; dup {
			d.logger.Debug("duplicate approval event",
				"wallet", wallet.Hex(),
				"token", token.Hex(),
				"spender", ev.Spender.Hex(),
				"block", ev.BlockNumber,
				"tx", ev.TxHash.Hex(),
			)
			continue
		}
		seen[ev.Spender] = struct{}{}
		spenders = append(spenders, ev.Spender)
	}

	metrics.DiscoveredSpenders.Add(float64(len(spenders)))
	d.logger.Debug("spenders discovered",
		"wallet", wallet.Hex(),
		"token", token.Hex(),
		"events", len(events),
		"spenders", len(spenders),
	)
	return spenders
}
