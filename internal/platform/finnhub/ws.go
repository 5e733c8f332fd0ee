package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// DefaultWSURL is the Finnhub trade stream endpoint.
const DefaultWSURL = "wss://ws.finnhub.io"

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// TradeHandler is called with the trades of each "trade" message.
type TradeHandler func([]Trade)

// WSClient is a WebSocket client for the Finnhub trade stream. A WSClient
// serves a single connection; callers reconnect by creating a new one.
type WSClient struct {
	wsURL string
	token string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	handlerMu sync.RWMutex
	handlers  []TradeHandler

	done chan struct{}
}

// NewWSClient creates a client for wsURL authenticated with token.
func NewWSClient(wsURL, token string) *WSClient {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &WSClient{
		wsURL: wsURL,
		token: token,
		done:  make(chan struct{}),
	}
}

// OnTrade registers a handler for trade messages.
func (w *WSClient) OnTrade(h TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Connect dials the stream and sends one subscribe command per symbol.
func (w *WSClient) Connect(ctx context.Context, symbols []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("finnhub/ws: %w", domain.ErrWSDisconnect)
	}

	u, err := url.Parse(w.wsURL)
	if err != nil {
		return fmt.Errorf("finnhub/ws: parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", w.token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("finnhub/ws: connect: %w", err)
	}
	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for _, sym := range symbols {
		if err := w.send(Command{Type: "subscribe", Symbol: sym}); err != nil {
			return fmt.Errorf("finnhub/ws: subscribe %s: %w", sym, err)
		}
	}
	return nil
}

// Listen reads messages until the connection fails, ctx is done or Close is
// called. It always returns a non-nil error.
func (w *WSClient) Listen(ctx context.Context) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("finnhub/ws: not connected")
	}

	go w.pingLoop(conn)
	stop := context.AfterFunc(ctx, func() { _ = w.Close() })
	defer stop()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("finnhub/ws: %w", domain.ErrWSDisconnect)
			default:
			}
			return fmt.Errorf("finnhub/ws: read: %w", err)
		}
		// Finnhub stream messages reset the deadline as well as pongs.
		conn.SetReadDeadline(time.Now().Add(pongWait))
		w.handleMessage(msg)
	}
}

// Close shuts down the connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return w.conn.Close()
	}
	return nil
}

// send writes a JSON command. Caller must hold w.mu.
func (w *WSClient) send(cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches "trade" messages. Pings, errors and unknown types
// are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	trades := ParseTrades(raw)
	if len(trades) == 0 {
		return
	}

	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(trades)
	}
}

// ParseTrades extracts the trades of a "trade" message. It returns nil for
// any other message type or malformed input.
func ParseTrades(raw []byte) []Trade {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	msg := gjson.ParseBytes(raw)
	if msg.Get("type").String() != "trade" {
		return nil
	}

	var trades []Trade
	msg.Get("data").ForEach(func(_, item gjson.Result) bool {
		sym := item.Get("s").String()
		price := item.Get("p").Float()
		if sym == "" || price <= 0 {
			return true
		}
		trades = append(trades, Trade{
			Symbol:    sym,
			Price:     price,
			Timestamp: item.Get("t").Int(),
			Volume:    item.Get("v").Float(),
		})
		return true
	})
	return trades
}
