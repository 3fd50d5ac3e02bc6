package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ReloadChannel is the Redis pub/sub channel reload notices travel on.
const ReloadChannel = "triage:artifact:reload"

type reloadNotice struct {
	Origin  string `json:"origin"`
	Version string `json:"version"`
}

// Broadcaster tells other processes sharing the artifact directory to reload
// after this process reloaded on request. Reloads triggered by a notice are
// never re-announced.
type Broadcaster struct {
	rdb        *redis.Client
	provider   *Provider
	origin     string
	logger     zerolog.Logger
	subscribe  func(ctx context.Context) (<-chan *redis.Message, func() error, error)
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewBroadcaster(rdb *redis.Client, provider *Provider, logger zerolog.Logger) *Broadcaster {
	b := &Broadcaster{
		rdb:        rdb,
		provider:   provider,
		origin:     uuid.NewString(),
		logger:     logger.With().Str("component", "artifact-broadcast").Logger(),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
	b.subscribe = b.redisSubscribe
	return b
}

// Announce publishes a reload notice for version.
func (b *Broadcaster) Announce(ctx context.Context, version string) error {
	msg, err := json.Marshal(reloadNotice{Origin: b.origin, Version: version})
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, ReloadChannel, msg).Err(); err != nil {
		return fmt.Errorf("publish reload notice: %w", err)
	}
	return nil
}

// AnnounceBestEffort announces and logs any failure.
func (b *Broadcaster) AnnounceBestEffort(ctx context.Context, version string) {
	if err := b.Announce(ctx, version); err != nil {
		b.logger.Warn().Err(err).Str("version", version).Msg("reload notice not sent")
	}
}

// Listen consumes reload notices until ctx is cancelled. A failed or lost
// subscription is retried with exponential backoff.
func (b *Broadcaster) Listen(ctx context.Context) {
	delay := b.minBackoff
	for {
		ch, closeSub, err := b.subscribe(ctx)
		if err == nil {
			delay = b.minBackoff
			b.consume(ctx, ch)
			closeSub()
			err = fmt.Errorf("subscription to %s closed", ReloadChannel)
		}
		if ctx.Err() != nil {
			return
		}
		b.logger.Warn().Err(err).Dur("retry_in", delay).Msg("reload notices unavailable")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if delay *= 2; delay > b.maxBackoff {
			delay = b.maxBackoff
		}
	}
}

func (b *Broadcaster) redisSubscribe(ctx context.Context) (<-chan *redis.Message, func() error, error) {
	sub := b.rdb.Subscribe(ctx, ReloadChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", ReloadChannel, err)
	}
	return sub.Channel(), sub.Close, nil
}

func (b *Broadcaster) consume(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handle(ctx, msg.Payload)
		}
	}
}

func (b *Broadcaster) handle(ctx context.Context, payload string) {
	var n reloadNotice
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		b.logger.Warn().Err(err).Msg("malformed reload notice")
		return
	}
	if n.Origin == b.origin {
		return
	}
	if cur := b.provider.Current(); cur != nil && cur.Version == n.Version {
		return
	}
	a, err := b.provider.Reload(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Str("version", n.Version).Msg("reload after notice failed")
		return
	}
	b.logger.Info().Str("version", a.Version).Str("origin", n.Origin).Msg("artifact reloaded after notice")
}
