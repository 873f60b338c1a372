// Package redis publishes observation notifications for external observers:
// each observation is appended to a capped Redis stream, broadcast on a
// pub/sub channel, and mirrored into a latest-snapshot key with a TTL.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"treasury-systemv1/internal/model"
)

const (
	// Stream trimming: roughly one day of minute observations plus buffer.
	observationStreamMaxLen = 2000

	streamKey    = "stream:observations"
	pubsubKey    = "pub:observations"
	latestKey    = "latest:observation"
	latestTTL    = 30 * time.Minute
	writeTimeout = 3 * time.Second
)

// PublisherConfig configures the observation publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes observations to Redis behind a circuit breaker so a Redis
// outage cannot stall or crash the indicator pipeline.
type Publisher struct {
	client  *goredis.Client
	breaker *circuitBreaker

	// Optional metrics hooks.
	OnWrite func(latency time.Duration)
	OnDrop  func()
}

// NewPublisher connects to Redis and pings the server.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Publisher{
		client:  client,
		breaker: newCircuitBreaker(5, 10*time.Second),
	}, nil
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Run consumes observations and publishes them until ctx is cancelled or the
// channel is closed. Publish failures are dropped, never retried: the stream
// is a telemetry surface, not a system of record.
func (p *Publisher) Run(ctx context.Context, obsCh <-chan model.Observation) {
	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-obsCh:
			if !ok {
				return
			}
			if err := p.publish(ctx, obs); err != nil {
				if p.OnDrop != nil {
					p.OnDrop()
				}
				log.Printf("[redis] publish observation: %v", err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, obs model.Observation) error {
	return p.breaker.execute(func() error {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()

		start := time.Now()
		pipe := p.client.Pipeline()
		pipe.XAdd(wctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: observationStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"ts":    obs.TS.UnixNano(),
				"price": obs.Price,
			},
		})
		payload := string(obs.JSON())
		pipe.Publish(wctx, pubsubKey, payload)
		pipe.Set(wctx, latestKey, payload, latestTTL)
		_, err := pipe.Exec(wctx)
		if err != nil {
			return err
		}
		if p.OnWrite != nil {
			p.OnWrite(time.Since(start))
		}
		return nil
	})
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
