package feed

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsDialTimeout    = 10 * time.Second
	wsReadDeadline   = 90 * time.Second
	wsReconnectDelay = 5 * time.Second
)

// wsMessage is the wire format pushed by the oracle gateway.
type wsMessage struct {
	Value     int64 `json:"value"`
	UpdatedAt int64 `json:"updated_at"` // unix seconds
}

// WSFeed is a Feed backed by a WebSocket stream of oracle readings.
// It keeps only the latest reading; consumers poll via LatestReading.
type WSFeed struct {
	mu       sync.RWMutex
	name     string
	url      string
	decimals int
	reading  Reading
	set      bool

	// Optional metrics hook, fired on every reconnect attempt.
	OnReconnect func()
}

// NewWSFeed creates a WebSocket-backed feed. Call Run to start streaming.
func NewWSFeed(name, url string, decimals int) *WSFeed {
	return &WSFeed{name: name, url: url, decimals: decimals}
}

func (f *WSFeed) Name() string  { return f.name }
func (f *WSFeed) Decimals() int { return f.decimals }

func (f *WSFeed) LatestReading() (Reading, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return Reading{}, ErrNoReading
	}
	return f.reading, nil
}

// Run connects to the stream and keeps the latest reading fresh,
// reconnecting with a fixed delay on any failure. Blocks until ctx is done.
func (f *WSFeed) Run(ctx context.Context) {
	for {
		if err := f.stream(ctx); err != nil {
			log.Printf("[feed] %s: stream ended: %v", f.name, err)
		}
		if f.OnReconnect != nil {
			f.OnReconnect()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wsReconnectDelay):
		}
	}
}

func (f *WSFeed) stream(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsDialTimeout}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("[feed] %s: connected to %s", f.name, f.url)

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[feed] %s: bad message: %v", f.name, err)
			continue
		}

		f.mu.Lock()
		f.reading = Reading{
			Value:     msg.Value,
			UpdatedAt: time.Unix(msg.UpdatedAt, 0).UTC(),
		}
		f.set = true
		f.mu.Unlock()
	}
}
