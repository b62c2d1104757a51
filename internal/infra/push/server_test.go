package push

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
)

func dialTestServer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(s.handleWS))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testSnapshot(total int64) domain.PortfolioSnapshot {
	return domain.PortfolioSnapshot{
		InitialBalance:   decimal.NewFromInt(10000),
		AvailableBalance: decimal.NewFromInt(total),
		TotalValue:       decimal.NewFromInt(total),
	}
}

func readUpdate(t *testing.T, conn *websocket.Conn) domain.PortfolioSnapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var msg struct {
		Type      string                   `json:"type"`
		Portfolio domain.PortfolioSnapshot `json:"portfolio"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.Type != "portfolio_update" {
		t.Fatalf("Expected portfolio_update, got %s", msg.Type)
	}
	return msg.Portfolio
}

func TestServer_BroadcastReachesClient(t *testing.T) {
	s := NewServer(":0")
	conn := dialTestServer(t, s)

	// Wait until the server registered the client
	deadline := time.Now().Add(time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	s.Broadcast(testSnapshot(10500))

	snap := readUpdate(t, conn)
	if !snap.TotalValue.Equal(decimal.NewFromInt(10500)) {
		t.Errorf("Expected total 10500, got %s", snap.TotalValue)
	}
}

func TestServer_LateJoinerGetsLatest(t *testing.T) {
	s := NewServer(":0")

	// Broadcast before anyone is connected
	s.Broadcast(testSnapshot(11000))

	conn := dialTestServer(t, s)
	snap := readUpdate(t, conn)
	if !snap.TotalValue.Equal(decimal.NewFromInt(11000)) {
		t.Errorf("Expected replayed snapshot 11000, got %s", snap.TotalValue)
	}
}
