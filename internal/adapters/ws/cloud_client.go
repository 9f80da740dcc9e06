// Package ws implements the cloud client as a mutual-TLS websocket session
// carrying JSON publish envelopes.
package ws

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/bft-labs/devlink/internal/domain"
	"github.com/bft-labs/devlink/internal/ports"
	"github.com/bft-labs/devlink/pkg/log"
)

// ErrNotConnected is returned when publishing without a session.
var ErrNotConnected = errors.New("ws: not connected")

// DefaultPath is the websocket path used when the endpoint is a bare host.
const DefaultPath = "/mqtt"

// Config configures the cloud client.
type Config struct {
	// Endpoint is a host name or a ws:// or wss:// URL.
	Endpoint string

	// ClientID identifies the device to the cloud.
	ClientID string

	// RootCA is an optional PEM bundle trusted for the server certificate.
	RootCA []byte

	// DialTimeout bounds resolve and connect. Zero means 30s.
	DialTimeout time.Duration
}

// Envelope is the JSON frame sent for every publish.
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// CloudClient implements ports.CloudClient.
type CloudClient struct {
	cfg      Config
	resolver *net.Resolver
	logger   log.Logger

	mu       sync.Mutex
	url      *url.URL
	cert     *tls.Certificate
	addrs    []string
	conn     *websocket.Conn
	statusCb ports.CloudStatusCallback
}

// New creates a client for cfg.
func New(cfg Config, logger log.Logger) *CloudClient {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &CloudClient{
		cfg:      cfg,
		resolver: net.DefaultResolver,
		logger:   log.With(logger, log.String("component", "cloud")),
	}
}

// Config returns the configuration the client was created with.
func (c *CloudClient) Config() Config {
	return c.cfg
}

// Init parses the endpoint.
func (c *CloudClient) Init(ctx context.Context) error {
	u, err := endpointURL(c.cfg.Endpoint)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.url = u
	c.mu.Unlock()
	return nil
}

func endpointURL(endpoint string) (*url.URL, error) {
	if endpoint == "" {
		return nil, errors.New("ws: endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "wss://" + endpoint + DefaultPath
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("ws: parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("ws: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("ws: endpoint %q has no host", endpoint)
	}
	return u, nil
}

// SetCredentials parses the PEM certificate and key.
func (c *CloudClient) SetCredentials(cert, key []byte) error {
	pair, err := tls.X509KeyPair(cert, key)
	if err != nil {
		return fmt.Errorf("ws: load key pair: %w", err)
	}
	c.mu.Lock()
	c.cert = &pair
	c.mu.Unlock()
	return nil
}

// ResolveServer looks up the endpoint host.
func (c *CloudClient) ResolveServer(ctx context.Context) error {
	c.mu.Lock()
	u := c.url
	c.mu.Unlock()
	if u == nil {
		return errors.New("ws: client not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	addrs, err := c.resolver.LookupHost(ctx, u.Hostname())
	if err != nil {
		return fmt.Errorf("ws: resolve %s: %w", u.Hostname(), err)
	}

	c.mu.Lock()
	c.addrs = addrs
	c.mu.Unlock()
	c.logger.Info("endpoint resolved", log.String("host", u.Hostname()), log.Any("addrs", addrs))
	return nil
}

func (c *CloudClient) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.cert != nil {
		cfg.Certificates = []tls.Certificate{*c.cert}
	}
	if len(c.cfg.RootCA) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(c.cfg.RootCA) {
			return nil, errors.New("ws: root CA contains no certificates")
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// Connect dials the session.
func (c *CloudClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	u, cert := c.url, c.cert
	c.mu.Unlock()
	if u == nil {
		return errors.New("ws: client not initialized")
	}
	if cert == nil {
		return errors.New("ws: credentials not set")
	}

	tlsCfg, err := c.tlsConfig()
	if err != nil {
		return err
	}
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: tlsCfg}}

	header := http.Header{}
	header.Set("X-Client-Id", c.cfg.ClientID)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, u.String(), &websocket.DialOptions{
		HTTPClient: client,
		HTTPHeader: header,
	})
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop(conn)

	c.logger.Info("connected", log.String("url", u.String()), log.String("client_id", c.cfg.ClientID))
	return nil
}

// readLoop consumes inbound frames so control frames are answered, and
// reports a drop when the session ends without Disconnect.
func (c *CloudClient) readLoop(conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(context.Background())
		if err != nil {
			c.mu.Lock()
			ours := c.conn == conn
			if ours {
				c.conn = nil
			}
			cb := c.statusCb
			c.mu.Unlock()

			if ours {
				c.logger.Warn("session lost", log.Err(err))
				if cb != nil {
					cb(domain.CloudDisconnected)
				}
			}
			return
		}
		c.logger.Debug("inbound message", log.Stringer("type", typ), log.Int("bytes", len(data)))
	}
}

// Disconnect closes the session.
func (c *CloudClient) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(websocket.StatusNormalClosure, "disconnect"); err != nil {
		c.logger.Debug("close websocket", log.Err(err))
	}
}

// IsConnected reports whether a session is established.
func (c *CloudClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SetStatusCallback registers cb for unsolicited session drops.
func (c *CloudClient) SetStatusCallback(cb ports.CloudStatusCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCb = cb
}

// TopicName returns the full topic for t.
func (c *CloudClient) TopicName(t domain.Topic) string {
	return "devices/" + c.cfg.ClientID + "/" + t.String()
}

// Publish sends payload on topic. payload must be JSON.
func (c *CloudClient) Publish(ctx context.Context, topic domain.Topic, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if !json.Valid(payload) {
		return fmt.Errorf("ws: %s payload is not JSON", topic)
	}

	b, err := json.Marshal(Envelope{Topic: c.TopicName(topic), Payload: payload})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("ws: publish %s: %w", topic, err)
	}
	return nil
}

// PublishPersistentMetadata clears the reported shadow document, then
// publishes fields as the new reported state.
func (c *CloudClient) PublishPersistentMetadata(ctx context.Context, fields map[string]string) error {
	if err := c.Publish(ctx, domain.TopicShadow, []byte(`{"state":{"reported":null}}`)); err != nil {
		return fmt.Errorf("clear shadow: %w", err)
	}

	doc := map[string]any{"state": map[string]any{"reported": fields}}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := c.Publish(ctx, domain.TopicShadow, b); err != nil {
		return fmt.Errorf("update shadow: %w", err)
	}
	return nil
}
