package auth

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	cserr "github.com/chronoscale/chronoscale-auth/pkg/errors"
)

// Chain tries an ordered list of providers and returns the first success.
// Order matters only for latency (cheapest check first), never for
// correctness: token formats for the strategies are mutually
// distinguishable, so a token valid under one will not falsely validate
// under another.
//
// When every provider rejects, the caller gets one generic failure with
// no per-provider detail, so a prober cannot map which strategies are
// configured. The individual rejections go to the server log only.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
	tracer    trace.Tracer
}

var _ Provider = (*Chain)(nil)

// NewChain composes providers in the given order. An empty chain is a
// configuration error, rejected here rather than at first request.
func NewChain(providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, cserr.New(cserr.CodeInternalConfiguration,
			"auth: provider chain must not be empty")
	}
	return &Chain{
		providers: providers,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// ValidateToken tries each provider in order, returning the first
// successful AuthContext.
func (c *Chain) ValidateToken(ctx context.Context, token string) (*AuthContext, error) {
	ctx, span := startSpan(ctx, c.tracer, "auth.Chain.ValidateToken")
	defer span.End()

	for i, p := range c.providers {
		authCtx, err := p.ValidateToken(ctx, token)
		if err == nil {
			span.SetAttributes(
				attribute.Int("auth.provider_index", i),
				attribute.String("auth.auth_type", string(authCtx.AuthType)),
			)
			return authCtx, nil
		}
		c.logger.DebugContext(ctx, "auth: provider rejected token",
			"provider_index", i,
			"error", err,
		)
	}

	err := cserr.Unauthorized("auth: authentication failed")
	finishSpan(span, err)
	return nil, err
}
