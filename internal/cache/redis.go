package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Connect opens a Redis client from a redis:// URL and verifies it with a ping.
func Connect(ctx context.Context, redisURL string) (redis.UniversalClient, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if zerolog.GlobalLevel() <= zerolog.TraceLevel {
		client.AddHook(traceHook{})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().Str("addr", opt.Addr).Int("db", opt.DB).Msg("Successfully connected to Redis")
	return client, nil
}

// traceHook logs every Redis command at trace level.
type traceHook struct{}

func (traceHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		log.Trace().Str("addr", addr).Err(err).Msg("redis: dial")
		return conn, err
	}
}

func (traceHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		log.Trace().Str("cmd", cmd.Name()).Dur("took", time.Since(start)).Err(err).Msg("redis: command")
		return err
	}
}

func (traceHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		log.Trace().Int("cmds", len(cmds)).Dur("took", time.Since(start)).Err(err).Msg("redis: pipeline")
		return err
	}
}
