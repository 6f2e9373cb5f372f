package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	mainnetWSURL = "wss://notifications.api.sui-prod.bluefin.io"
	testnetWSURL = "wss://notifications.api.sui-staging.bluefin.io"
)

// BluefinTicker implements the Ticker interface over the Bluefin
// notifications websocket. It streams mark-price updates and reconnects
// with exponential backoff when the connection drops.
type BluefinTicker struct {
	url  string
	conn *websocket.Conn

	onTick  func(Tick)
	onError func(error)

	connected  bool
	subscribed []string
	closing    bool

	maxRetries int
	baseDelay  time.Duration

	mu      sync.RWMutex
	writeMu sync.Mutex // serializes websocket writes
}

// BluefinTickerConfig holds configuration for the ticker.
type BluefinTickerConfig struct {
	Network    string // "mainnet" or "testnet"
	WSURL      string // overrides the network default when set
	MaxRetries int
	BaseDelay  time.Duration
}

// NewBluefinTicker creates a new Bluefin websocket ticker.
func NewBluefinTicker(cfg BluefinTickerConfig) *BluefinTicker {
	url := cfg.WSURL
	if url == "" {
		if cfg.Network == "testnet" {
			url = testnetWSURL
		} else {
			url = mainnetWSURL
		}
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	baseDelay := cfg.BaseDelay
	if baseDelay == 0 {
		baseDelay = time.Second
	}

	return &BluefinTicker{
		url:        url,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Connect establishes the websocket connection and starts the read loop.
func (t *BluefinTicker) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.closing = false
	t.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", t.url, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.mu.Unlock()

	go t.readLoop(ctx)

	// Restore subscriptions after a reconnect.
	t.mu.RLock()
	symbols := append([]string(nil), t.subscribed...)
	t.mu.RUnlock()
	if len(symbols) > 0 {
		if err := t.sendSubscribe(symbols); err != nil {
			return err
		}
	}

	return nil
}

// Disconnect closes the websocket connection.
func (t *BluefinTicker) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closing = true
	if t.conn != nil {
		err := t.conn.Close()
		t.conn = nil
		t.connected = false
		return err
	}
	return nil
}

// Subscribe subscribes to mark-price updates for the given symbols.
func (t *BluefinTicker) Subscribe(symbols []string) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return fmt.Errorf("not connected")
	}
	for _, s := range symbols {
		if !contains(t.subscribed, s) {
			t.subscribed = append(t.subscribed, s)
		}
	}
	t.mu.Unlock()

	return t.sendSubscribe(symbols)
}

func (t *BluefinTicker) sendSubscribe(symbols []string) error {
	msg := []interface{}{
		"SUBSCRIBE",
		[]map[string]interface{}{
			{"e": "MarketDataUpdate", "p": symbols},
		},
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

// OnTick sets the tick handler.
func (t *BluefinTicker) OnTick(handler func(Tick)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTick = handler
}

// OnError sets the error handler.
func (t *BluefinTicker) OnError(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = handler
}

// IsConnected returns whether the ticker is connected.
func (t *BluefinTicker) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// marketDataEvent is the wire shape of a MarketDataUpdate notification.
type marketDataEvent struct {
	EventName string `json:"eventName"`
	Data      struct {
		Symbol    string `json:"symbol"`
		MarkPrice string `json:"markPrice"`
		Timestamp int64  `json:"lastUpdatedAt"`
	} `json:"data"`
}

func (t *BluefinTicker) readLoop(ctx context.Context) {
	for {
		t.mu.RLock()
		conn := t.conn
		t.mu.RUnlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			t.connected = false
			closing := t.closing
			t.mu.Unlock()

			if closing || ctx.Err() != nil {
				return
			}
			t.emitError(fmt.Errorf("websocket read failed: %w", err))
			go t.reconnect(ctx)
			return
		}

		var event marketDataEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}
		if event.EventName != "MarketDataUpdate" || event.Data.Symbol == "" {
			continue
		}

		price, err := strconv.ParseFloat(event.Data.MarkPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		price /= quoteScale

		t.mu.RLock()
		handler := t.onTick
		t.mu.RUnlock()
		if handler != nil {
			handler(Tick{
				Symbol:    event.Data.Symbol,
				MarkPrice: price,
				Timestamp: event.Data.Timestamp,
			})
		}
	}
}

// reconnect attempts to reconnect with exponential backoff.
func (t *BluefinTicker) reconnect(ctx context.Context) {
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		delay := t.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		time.Sleep(delay)

		t.mu.RLock()
		closing := t.closing
		t.mu.RUnlock()
		if closing {
			return
		}

		if err := t.Connect(ctx); err == nil {
			return
		}
	}

	t.emitError(fmt.Errorf("max reconnection attempts reached"))
}

func (t *BluefinTicker) emitError(err error) {
	t.mu.RLock()
	handler := t.onError
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var _ Ticker = (*BluefinTicker)(nil)
