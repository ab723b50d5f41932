// Package messaging publishes vesting events over NATS. Events are one-way
// notifications: the engine never waits on delivery, and a broker outage is
// absorbed by a circuit breaker rather than surfacing into ledger calls.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/terminal-bench/vestcore/pkg/circuit"
)

// Config holds NATS connection settings.
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// Client wraps a NATS connection behind a circuit breaker.
type Client struct {
	conn    *nats.Conn
	breaker *circuit.Breaker
}

// NewClient connects to NATS.
func NewClient(cfg Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Client{
		conn:    conn,
		breaker: circuit.New(circuit.Config{MaxFailures: 5, Cooldown: 30 * time.Second}),
	}, nil
}

// Emit publishes payload as JSON on topic. Implements the engine's emitter
// contract; callers treat failures as lost notifications, not call failures.
func (c *Client) Emit(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return c.breaker.Do(func() error {
		return c.conn.Publish(topic, data)
	})
}

// Subscribe registers handler for topic (NATS wildcards allowed).
func (c *Client) Subscribe(topic string, handler func(topic string, data []byte)) (*nats.Subscription, error) {
	sub, err := c.conn.Subscribe(topic, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return sub, nil
}

// IsConnected reports broker connectivity.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close closes the connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Noop is an emitter that drops everything, for deployments without a broker.
type Noop struct{}

func (Noop) Emit(ctx context.Context, topic string, payload interface{}) error { return nil }
