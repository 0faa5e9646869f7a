package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var ErrClosed = errors.New("feed connection closed")

// Client is a WebSocket connection to one business's reservation feed. Every frame the
// server pushes is applied to the Cache; command acks are routed back to the caller.
type Client struct {
	conn  *websocket.Conn
	cache *Cache

	writeMu sync.Mutex
	mu      sync.Mutex
	waiters map[string]chan Ack
	nextID  atomic.Uint64

	onError func(error)
	done    chan struct{}
	errOnce sync.Once
	err     error
}

type ClientOption func(*Client)

// OnApplyError receives frames the cache could not apply
func OnApplyError(fn func(error)) ClientOption {
	return func(c *Client) { c.onError = fn }
}

// Dial connects to endpoint (e.g. ws://host:8080/ws/reservations) subscribed to businessID.
// The server answers the subscription with a snapshot, so the cache is Reset first.
func Dial(ctx context.Context, endpoint, businessID string, cache *Cache, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("business_id", businessID)
	u.RawQuery = q.Encode()

	cache.Reset()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}

	c := &Client{
		conn:    conn,
		cache:   cache,
		waiters: make(map[string]chan Ack),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	return c, nil
}

func (c *Client) Cache() *Cache { return c.cache }

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Call sends a command and waits for its ack
func (c *Client) Call(ctx context.Context, event string, payload interface{}) (Ack, error) {
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	ch := make(chan Ack, 1)

	c.mu.Lock()
	c.waiters[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
	}()

	env, err := NewEnvelope(event, id, 0, payload)
	if err != nil {
		return Ack{}, err
	}
	if err := c.write(env); err != nil {
		return Ack{}, err
	}

	select {
	case ack := <-ch:
		return ack, nil
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	case <-c.done:
		return Ack{}, ErrClosed
	}
}

// RequestSnapshot asks for a fresh reservationsData frame
func (c *Client) RequestSnapshot(ctx context.Context, businessID string) error {
	ack, err := c.Call(ctx, EventGetReservations, map[string]string{"business_id": businessID})
	if err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("snapshot refused: %s", ack.Message)
	}
	return nil
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	c.finish(ErrClosed)
	return err
}

func (c *Client) write(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.reportError(fmt.Errorf("decode frame: %w", err))
			continue
		}

		if env.Event == EventAck {
			c.resolve(env)
			continue
		}
		if err := c.cache.Apply(env); err != nil {
			c.reportError(err)
		}
	}
}

func (c *Client) resolve(env Envelope) {
	var ack Ack
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		c.reportError(fmt.Errorf("decode ack: %w", err))
		return
	}
	c.mu.Lock()
	ch, ok := c.waiters[env.AckID]
	c.mu.Unlock()
	if ok {
		ch <- ack
	}
}

func (c *Client) reportError(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *Client) finish(err error) {
	c.errOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}
