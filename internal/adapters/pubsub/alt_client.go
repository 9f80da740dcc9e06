// Package pubsub implements the alternate-protocol client: telemetry is
// published to a Redis pub/sub channel.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/bft-labs/devlink/pkg/log"
)

// DefaultChannel is the channel telemetry is published to.
const DefaultChannel = "devlink:telemetry"

// AltClient implements ports.AltClient.
type AltClient struct {
	addr    string
	channel string
	logger  log.Logger

	mu     sync.Mutex
	client *redis.Client
}

// NewAltClient creates a client for addr (host:port or redis:// URL).
func NewAltClient(addr, channel string, logger log.Logger) *AltClient {
	if channel == "" {
		channel = DefaultChannel
	}
	return &AltClient{
		addr:    addr,
		channel: channel,
		logger:  log.With(logger, log.String("component", "alt")),
	}
}

// Init connects and verifies the server answers.
func (a *AltClient) Init(ctx context.Context) error {
	url := a.addr
	if !strings.Contains(url, "://") {
		url = "redis://" + url
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return fmt.Errorf("parse redis address: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}

	a.mu.Lock()
	old := a.client
	a.client = client
	a.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	a.logger.Info("alternate client connected", log.String("addr", opts.Addr), log.String("channel", a.channel))
	return nil
}

// Publish sends payload to the telemetry channel.
func (a *AltClient) Publish(ctx context.Context, payload []byte) error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil {
		return errors.New("redis: client not initialized")
	}
	return client.Publish(ctx, a.channel, payload).Err()
}

// Close releases the connection. Safe to call when not initialized.
func (a *AltClient) Close() error {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}
