// Package tokenmeta resolves token symbol, decimals and USD price once per
// token per run.
package tokenmeta

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/JoeanSteinbock/address-approval-checker/internal/cache"
	"github.com/JoeanSteinbock/address-approval-checker/internal/chain"
	"github.com/JoeanSteinbock/address-approval-checker/internal/domain/model"
	"github.com/JoeanSteinbock/address-approval-checker/internal/metrics"
)

const defaultCapacity = 1024

// Stablecoins are priced at 1 USD when no explicit price is supplied.
var Stablecoins = map[string]struct{}{
	"USDT": {},
	"USDC": {},
	"DAI":  {},
	"BUSD": {},
	"TUSD": {},
	"USDK": {},
	"GUSD": {},
}

// ResolvePrice applies the price policy: explicit price, then the stablecoin
// set, then unknown.
func ResolvePrice(explicit *float64, symbol string) *float64 {
	if explicit != nil {
		p := *explicit
		return &p
	}
	if _, ok := Stablecoins[model.NormalizeSymbol(symbol)]; ok {
		return model.Float64Ptr(1)
	}
	return nil
}

type Resolver struct {
	client chain.Client
	memo   *cache.Memo[model.TokenInfo]
	logger *slog.Logger
}

func NewResolver(client chain.Client, capacity int, logger *slog.Logger) *Resolver {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Resolver{
		client: client,
		memo:   cache.NewMemo[model.TokenInfo](capacity),
		logger: logger.With("component", "tokenmeta"),
	}
}

// Resolve returns the token's metadata. It never fails: a token whose
// metadata cannot be read gets placeholder values and keeps any explicit
// price. Concurrent calls for the same token share one lookup.
func (r *Resolver) Resolve(ctx context.Context, in model.TokenInput) model.TokenInfo {
	info, _, err := r.memo.GetOrLoad(ctx, strings.ToLower(in.Address.Hex()), func(ctx context.Context) (model.TokenInfo, error) {
		return r.fetch(ctx, in), nil
	})
	if err != nil {
		return model.PlaceholderToken(in)
	}
	return info
}

// Stats returns metadata cache hits and misses.
func (r *Resolver) Stats() (hits, misses int64) {
	return r.memo.Stats()
}

func (r *Resolver) fetch(ctx context.Context, in model.TokenInput) model.TokenInfo {
	var (
		symbol   string
		decimals uint8
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := r.client.Symbol(gctx, in.Address)
		if err != nil {
			return err
		}
		symbol = s
		return nil
	})
	g.Go(func() error {
		d, err := r.client.Decimals(gctx, in.Address)
		if err != nil {
			return err
		}
		decimals = d
		return nil
	})

	if err := g.Wait(); err != nil {
		metrics.TokenMetadataDegraded.Inc()
		r.logger.Warn("token metadata unavailable; using placeholder",
			"token", in.Address.Hex(),
			"error", err,
		)
		return model.PlaceholderToken(in)
	}

	info := model.TokenInfo{
		Address:  in.Address,
		Symbol:   symbol,
		Decimals: decimals,
		Price:    ResolvePrice(in.Price, symbol),
	}
	r.logger.Debug("token metadata resolved",
		"token", in.Address.Hex(),
		"symbol", info.Symbol,
		"decimals", info.Decimals,
		"price_known", info.HasPrice(),
	)
	return info
}
