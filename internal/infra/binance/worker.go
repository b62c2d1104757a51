package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
	"simtrader/internal/event"
	"simtrader/internal/infra"
)

const (
	defaultWSURL = "wss://stream.binance.com:9443/stream"
	maxRetries   = 10
	readTimeout  = 60 * time.Second
)

// streamWrapper is the combined-stream envelope.
type streamWrapper struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tickerMsg is the 24hr rolling ticker payload.
type tickerMsg struct {
	Symbol string `json:"s"`
	Last   string `json:"c"`
	Volume string `json:"v"`
	Time   int64  `json:"E"`
}

// klineMsg is the kline/candlestick payload.
type klineMsg struct {
	Symbol string `json:"s"`
	Kline  struct {
		StartTime int64  `json:"t"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// Worker handles the Binance combined-stream WebSocket connection. It
// subscribes to a ticker and a 1m kline stream per symbol and feeds the
// engine inbox. Only closed klines become candle events.
type Worker struct {
	wsURL     string
	symbols   []string
	inbox     chan<- event.Event
	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWorker creates a new Binance market-data worker. wsURL may be empty
// to use the production endpoint.
func NewWorker(wsURL string, symbols []string, inbox chan<- event.Event) *Worker {
	if wsURL == "" {
		wsURL = defaultWSURL
	}
	return &Worker{
		wsURL:   wsURL,
		symbols: symbols,
		inbox:   inbox,
	}
}

// Connect starts the WebSocket connection
func (w *Worker) Connect(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.connectionLoop(ctx)
	return nil
}

func (w *Worker) connectionLoop(ctx context.Context) {
	defer w.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("Binance connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			w.readLoop(ctx)
		}
	}
}

// streamPath builds the combined-stream query: one ticker and one 1m
// kline stream per symbol.
func (w *Worker) streamPath() string {
	streams := make([]string, 0, len(w.symbols)*2)
	for _, s := range w.symbols {
		lower := strings.ToLower(s)
		streams = append(streams, lower+"@ticker", lower+"@kline_1m")
	}
	return w.wsURL + "?streams=" + strings.Join(streams, "/")
}

func (w *Worker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)

	conn, _, err := dialer.DialContext(ctx, w.streamPath(), header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	// Binance pings every ~20s and drops clients that do not pong back.
	conn.SetPingHandler(func(payload string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return w.threadSafeWrite(websocket.PongMessage, []byte(payload))
	})

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	w.mu.Unlock()

	slog.Info("Binance Connected", slog.Int("symbols", len(w.symbols)))
	return nil
}

func (w *Worker) threadSafeWrite(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.conn == nil {
		return fmt.Errorf("no conn")
	}
	return w.conn.WriteMessage(msgType, data)
}

func (w *Worker) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.RLock()
		if w.conn == nil {
			w.mu.RUnlock()
			return
		}
		w.conn.SetReadDeadline(time.Now().Add(readTimeout))
		w.mu.RUnlock()

		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			w.closeConnection()
			return
		}
		w.handleMessage(msg)
	}
}

func (w *Worker) handleMessage(msg []byte) {
	var wrapper streamWrapper
	if json.Unmarshal(msg, &wrapper) != nil || wrapper.Stream == "" {
		return
	}

	switch {
	case strings.HasSuffix(wrapper.Stream, "@ticker"):
		w.handleTicker(wrapper.Data)
	case strings.Contains(wrapper.Stream, "@kline_"):
		w.handleKline(wrapper.Data)
	}
}

func (w *Worker) handleTicker(data json.RawMessage) {
	var msg tickerMsg
	if json.Unmarshal(data, &msg) != nil || msg.Symbol == "" {
		return
	}
	price, err := decimal.NewFromString(msg.Last)
	if err != nil {
		return
	}

	ev := event.AcquirePriceTickEvent()
	ev.Symbol = msg.Symbol
	ev.Price = price
	ev.Timestamp = time.UnixMilli(msg.Time)

	select {
	case w.inbox <- ev:
	default: // DROP
		event.ReleasePriceTickEvent(ev)
	}
}

func (w *Worker) handleKline(data json.RawMessage) {
	var msg klineMsg
	if json.Unmarshal(data, &msg) != nil || msg.Symbol == "" {
		return
	}
	if !msg.Kline.Closed {
		return
	}

	candle, err := parseCandle(msg.Kline.StartTime, msg.Kline.Open, msg.Kline.High, msg.Kline.Low, msg.Kline.Close, msg.Kline.Volume)
	if err != nil {
		return
	}

	ev := event.AcquireCandleEvent()
	ev.Symbol = msg.Symbol
	ev.Candle = candle

	select {
	case w.inbox <- ev:
	default: // DROP
		event.ReleaseCandleEvent(ev)
	}
}

func parseCandle(startMs int64, open, high, low, closeP, volume string) (domain.Candle, error) {
	var candle domain.Candle
	var err error
	if candle.Open, err = decimal.NewFromString(open); err != nil {
		return candle, err
	}
	if candle.High, err = decimal.NewFromString(high); err != nil {
		return candle, err
	}
	if candle.Low, err = decimal.NewFromString(low); err != nil {
		return candle, err
	}
	if candle.Close, err = decimal.NewFromString(closeP); err != nil {
		return candle, err
	}
	if candle.Volume, err = decimal.NewFromString(volume); err != nil {
		return candle, err
	}
	candle.Timestamp = time.UnixMilli(startMs)
	return candle, nil
}

func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.connected = false
}

func (w *Worker) Disconnect() {
	if w.cancel != nil {
		w.cancel()
	}
	w.closeConnection()
	w.wg.Wait()
}
