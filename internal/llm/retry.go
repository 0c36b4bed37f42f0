package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retrying retries transient provider failures with exponential backoff.
type Retrying struct {
	next            Client
	maxRetries      uint64
	initialInterval time.Duration
	logger          *slog.Logger
}

func NewRetrying(next Client, maxRetries int, logger *slog.Logger) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{
		next:            next,
		maxRetries:      uint64(maxRetries),
		initialInterval: 500 * time.Millisecond,
		logger:          logger,
	}
}

func (r *Retrying) Name() string {
	return r.next.Name()
}

func (r *Retrying) Chat(ctx context.Context, req Request) (Response, error) {
	var (
		resp    Response
		attempt int
	)
	op := func() error {
		attempt++
		var err error
		resp, err = r.next.Chat(ctx, req)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		r.logger.WarnContext(ctx, "llm call failed, retrying",
			slog.String("provider", r.next.Name()),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = 10 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return Response{}, err
	}
	return resp, nil
}
