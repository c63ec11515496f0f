package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Dhenenjay/Axion-MCP/internal/config"
)

// Open builds a Store from configuration. Without a Redis URL the store is
// memory-only. With one, it retries the connection with exponential backoff for
// up to ConnectTimeout; if Redis still does not answer, the store starts
// memory-only and keeps reconnecting in the background until Close.
//
// Open never fails: store unavailability only degrades durability.
func Open(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) *Store {
	s := New(nil, Options{
		CompositeTTL:  cfg.CompositeTTL,
		MapTTL:        cfg.MapTTL,
		SweepInterval: cfg.SweepInterval,
		Logger:        logger,
	})
	if cfg.RedisURL == "" {
		s.logger.Info().Msg("REDIS_URL not set, using memory-only store")
		return s
	}

	b, err := DialRedis(cfg.RedisURL)
	if err != nil {
		s.logger.Warn().Err(err).Msg("invalid Redis configuration, using memory-only store")
		return s
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = cfg.ConnectTimeout
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 5 * time.Second
	}

	if err := backoff.Retry(pingOp(ctx, b), backoff.WithContext(bo, ctx)); err != nil {
		s.logger.Warn().Err(err).Msg("Redis unreachable, continuing memory-only and reconnecting in background")
		s.bg.Add(1)
		go s.reconnect(b)
		return s
	}
	s.Attach(b)
	return s
}

func pingOp(ctx context.Context, b Backend) backoff.Operation {
	return func() error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return b.Ping(ctx)
	}
}

// reconnect keeps pinging b until it answers or the store closes.
func (s *Store) reconnect(b Backend) {
	defer s.bg.Done()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	notify := func(err error, next time.Duration) {
		s.logger.Debug().Err(err).Dur("retry_in", next).Msg("Redis still unreachable")
	}
	if err := backoff.RetryNotify(pingOp(s.ctx, b), backoff.WithContext(bo, s.ctx), notify); err != nil {
		_ = b.Close()
		return
	}
	s.Attach(b)
}
