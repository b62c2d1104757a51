package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"simtrader/internal/event"
)

func TestWorker_HandleTickerMessage(t *testing.T) {
	inbox := make(chan event.Event, 4)
	w := NewWorker("", []string{"BTCUSDT"}, inbox)

	msg := []byte(`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1750000000000,"s":"BTCUSDT","c":"50123.45","v":"12345.6"}}`)
	w.handleMessage(msg)

	select {
	case ev := <-inbox:
		tick, ok := ev.(*event.PriceTickEvent)
		if !ok {
			t.Fatalf("Expected PriceTickEvent, got %T", ev)
		}
		if tick.Symbol != "BTCUSDT" {
			t.Errorf("Expected BTCUSDT, got %s", tick.Symbol)
		}
		if !tick.Price.Equal(decimal.RequireFromString("50123.45")) {
			t.Errorf("Expected price 50123.45, got %s", tick.Price)
		}
	default:
		t.Fatal("No event produced for ticker message")
	}
}

func TestWorker_HandleClosedKline(t *testing.T) {
	inbox := make(chan event.Event, 4)
	w := NewWorker("", []string{"BTCUSDT"}, inbox)

	msg := []byte(`{"stream":"btcusdt@kline_1m","data":{"e":"kline","s":"BTCUSDT","k":{"t":1750000000000,"o":"50000","h":"50200","l":"49900","c":"50100","v":"10.5","x":true}}}`)
	w.handleMessage(msg)

	select {
	case ev := <-inbox:
		ce, ok := ev.(*event.CandleEvent)
		if !ok {
			t.Fatalf("Expected CandleEvent, got %T", ev)
		}
		if !ce.Candle.Close.Equal(decimal.RequireFromString("50100")) {
			t.Errorf("Expected close 50100, got %s", ce.Candle.Close)
		}
		if !ce.Candle.High.Equal(decimal.RequireFromString("50200")) {
			t.Errorf("Expected high 50200, got %s", ce.Candle.High)
		}
	default:
		t.Fatal("No event produced for closed kline")
	}
}

func TestWorker_IgnoresOpenKline(t *testing.T) {
	inbox := make(chan event.Event, 4)
	w := NewWorker("", []string{"BTCUSDT"}, inbox)

	msg := []byte(`{"stream":"btcusdt@kline_1m","data":{"e":"kline","s":"BTCUSDT","k":{"t":1750000000000,"o":"50000","h":"50200","l":"49900","c":"50100","v":"10.5","x":false}}}`)
	w.handleMessage(msg)

	select {
	case ev := <-inbox:
		t.Fatalf("Open kline must be dropped, got %T", ev)
	default:
	}
}

func TestWorker_IgnoresMalformedMessages(t *testing.T) {
	inbox := make(chan event.Event, 4)
	w := NewWorker("", []string{"BTCUSDT"}, inbox)

	for _, msg := range []string{
		`not json`,
		`{}`,
		`{"stream":"btcusdt@ticker","data":{"s":"BTCUSDT","c":"not-a-number"}}`,
		`{"stream":"btcusdt@depth","data":{}}`,
	} {
		w.handleMessage([]byte(msg))
	}

	select {
	case ev := <-inbox:
		t.Fatalf("Malformed message produced %T", ev)
	default:
	}
}

func TestWorker_RepliesToServerPing(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotPong := make(chan struct{}, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.SetPongHandler(func(string) error {
			select {
			case gotPong <- struct{}{}:
			default:
			}
			return nil
		})
		conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(time.Second))

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	inbox := make(chan event.Event, 4)
	w := NewWorker("ws"+strings.TrimPrefix(ts.URL, "http"), []string{"BTCUSDT"}, inbox)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer w.Disconnect()

	select {
	case <-gotPong:
	case <-time.After(3 * time.Second):
		t.Fatal("Server never received a pong")
	}
}

func TestWorker_StreamPath(t *testing.T) {
	w := NewWorker("wss://example/stream", []string{"BTCUSDT", "ETHUSDT"}, nil)

	want := "wss://example/stream?streams=btcusdt@ticker/btcusdt@kline_1m/ethusdt@ticker/ethusdt@kline_1m"
	if got := w.streamPath(); got != want {
		t.Errorf("Unexpected stream path:\n got %s\nwant %s", got, want)
	}
}
