// Package stream maintains the persistent push channel to the remote
// calendar service. It dials a WebSocket, decodes the named messages
// the service emits (sync, delta, deltaBatch, taskDelta), and hands
// them to a Handler — in practice the sync engine.
//
// The consumer reconnects with capped exponential backoff. Because
// deltas may have been missed while disconnected, every re-established
// connection is reported through Handler.HandleReconnect so the engine
// can schedule a full refetch.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Handler receives decoded push-channel messages.
//
// Implementations must tolerate calls from the consumer's read
// goroutine; the engine serializes internally.
type Handler interface {
	// HandleSync processes a sync hint with its optional revision.
	HandleSync(revision *int64)
	// HandleDelta processes a single raw delta payload.
	HandleDelta(payload json.RawMessage)
	// HandleDeltaBatch processes a raw batch envelope payload.
	HandleDeltaBatch(payload json.RawMessage)
	// HandleTaskDelta processes a raw task-scoped delta payload.
	HandleTaskDelta(payload json.RawMessage)
	// HandleReconnect runs after the channel re-establishes.
	HandleReconnect()
}

// envelope is the wire frame for every push message.
type envelope struct {
	Type     string          `json:"type"`
	Revision *int64          `json:"revision,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Config holds consumer configuration.
type Config struct {
	// URL is the WebSocket endpoint, e.g. "wss://api.example.com/v1/stream".
	URL string

	// Token is the bearer token presented when dialing.
	Token string

	// Logger for consumer activity. Nil means a default stderr logger.
	Logger *log.Logger

	// ReconnectMin/Max bound the backoff between dial attempts
	// (defaults: 1s and 30s).
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Consumer owns the push-channel connection lifecycle.
type Consumer struct {
	url     string
	token   string
	logger  *log.Logger
	minWait time.Duration
	maxWait time.Duration

	handler Handler

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewConsumer creates a consumer. Start must be called before any
// messages flow.
func NewConsumer(cfg Config, handler Handler) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("stream URL cannot be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[stream] ", log.LstdFlags)
	}
	minWait := cfg.ReconnectMin
	if minWait <= 0 {
		minWait = time.Second
	}
	maxWait := cfg.ReconnectMax
	if maxWait <= 0 {
		maxWait = 30 * time.Second
	}
	return &Consumer{
		url:     cfg.URL,
		token:   cfg.Token,
		logger:  logger,
		minWait: minWait,
		maxWait: maxWait,
		handler: handler,
	}, nil
}

// Start connects in the background and begins dispatching messages.
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("consumer already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// Stop tears the channel down and waits for the read loop to exit.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Println("Push channel stopped")
}

// Restart tears the channel down and re-establishes it with a new
// token. Used when authorization state changes.
func (c *Consumer) Restart(token string) error {
	c.Stop()
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return c.Start()
}

// run dials, reads until failure, and redials with backoff.
func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()

	wait := c.minWait
	first := true
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Printf("Dial failed, retrying in %s: %v", wait, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			wait *= 2
			if wait > c.maxWait {
				wait = c.maxWait
			}
			continue
		}

		wait = c.minWait
		if first {
			first = false
			c.logger.Println("Push channel connected")
		} else {
			c.logger.Println("Push channel reconnected")
			c.handler.HandleReconnect()
		}

		c.readLoop(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

func (c *Consumer) dial(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	opts := &websocket.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	conn, _, err := websocket.Dial(dialCtx, c.url, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.url, err)
	}
	return conn, nil
}

// readLoop reads frames until the connection or context dies.
func (c *Consumer) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Printf("Read failed, will reconnect: %v", err)
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes one frame and routes it. A frame that cannot be
// decoded at all degrades to a bare sync hint so the engine schedules
// its fallback refetch rather than silently losing a change.
func (c *Consumer) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Printf("Malformed push frame: %v", err)
		c.handler.HandleSync(nil)
		return
	}

	switch env.Type {
	case "sync":
		c.handler.HandleSync(env.Revision)
	case "delta":
		c.handler.HandleDelta(env.Payload)
	case "deltaBatch":
		c.handler.HandleDeltaBatch(env.Payload)
	case "taskDelta":
		c.handler.HandleTaskDelta(env.Payload)
	default:
		c.logger.Printf("Unknown push message type %q", env.Type)
		c.handler.HandleSync(nil)
	}
}
