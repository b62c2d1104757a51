package execution

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
	"simtrader/internal/ledger"
	"simtrader/internal/risk"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

// newTestSim builds a simulator with zero slippage for round numbers.
// Individual tests override cfg fields as needed.
func newTestSim(cfg Config) (*Simulator, *ledger.Ledger, *risk.Gate) {
	l := ledger.New(dec("10000"))
	g := risk.NewGate(risk.Limits{
		MaxDailyTrades:      100,
		MaxDailyLossPct:     dec("0.5"),
		MaxPositionFraction: dec("0.9"),
		MinTradeAmount:      dec("10"),
		StopLossPct:         dec("0.02"),
		TakeProfitPct:       dec("0.05"),
	}, l.TotalEquity)
	return NewSimulator(cfg, l, g), l, g
}

func TestSimulator_MarketBuyFillsImmediately(t *testing.T) {
	s, l, _ := newTestSim(Config{CommissionRate: dec("0.001"), MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))

	order, err := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, dec("0.1"), decimal.Zero)
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if order.Status != domain.OrderStatusFilled {
		t.Fatalf("Expected FILLED, got %s", order.Status)
	}
	if !order.AvgFillPrice.Equal(dec("50000")) {
		t.Errorf("Expected fill at 50000, got %s", order.AvgFillPrice)
	}
	if !order.Commission.Equal(dec("5")) {
		t.Errorf("Expected commission 5, got %s", order.Commission)
	}
	// 10000 - 5000 - 5
	if !l.AvailableBalance().Equal(dec("4995")) {
		t.Errorf("Expected balance 4995, got %s", l.AvailableBalance())
	}
}

func TestSimulator_SlippageDirection(t *testing.T) {
	s, _, _ := newTestSim(Config{Slippage: dec("0.001"), MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))

	// Buys slip up
	buy, err := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, dec("0.1"), decimal.Zero)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if !buy.AvgFillPrice.Equal(dec("50050")) {
		t.Errorf("Expected buy fill 50050, got %s", buy.AvgFillPrice)
	}

	// Sells slip down
	sell, err := s.SubmitOrder("BTCUSDT", domain.SideSell, domain.OrderTypeMarket, dec("0.1"), decimal.Zero)
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if !sell.AvgFillPrice.Equal(dec("49950")) {
		t.Errorf("Expected sell fill 49950, got %s", sell.AvgFillPrice)
	}
}

func TestSimulator_LimitBuyRestsUntilCrossed(t *testing.T) {
	s, _, _ := newTestSim(Config{MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))

	order, err := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeLimit, dec("0.1"), dec("49000"))
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("Expected PENDING, got %s", order.Status)
	}
	if got := len(s.GetOpenOrders("BTCUSDT")); got != 1 {
		t.Fatalf("Expected 1 open order, got %d", got)
	}

	// Above the limit: still resting
	s.OnPriceTick("BTCUSDT", dec("49500"))
	if got, _ := s.GetOrder(order.ID); got.Status != domain.OrderStatusPending {
		t.Fatalf("Order filled above limit: %s", got.Status)
	}

	// At the limit: fills at the limit price
	s.OnPriceTick("BTCUSDT", dec("49000"))
	got, err := s.GetOrder(order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.Status != domain.OrderStatusFilled {
		t.Fatalf("Expected FILLED, got %s", got.Status)
	}
	if !got.AvgFillPrice.Equal(dec("49000")) {
		t.Errorf("Expected fill at limit 49000, got %s", got.AvgFillPrice)
	}
	if got := len(s.GetOpenOrders("BTCUSDT")); got != 0 {
		t.Errorf("Expected no open orders, got %d", got)
	}
}

func TestSimulator_LimitSellFillsAtOrAbove(t *testing.T) {
	s, _, _ := newTestSim(Config{MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))
	if _, err := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, dec("0.1"), decimal.Zero); err != nil {
		t.Fatalf("Seed buy failed: %v", err)
	}

	order, err := s.SubmitOrder("BTCUSDT", domain.SideSell, domain.OrderTypeLimit, dec("0.1"), dec("51000"))
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}

	s.OnPriceTick("BTCUSDT", dec("51200"))
	got, _ := s.GetOrder(order.ID)
	if got.Status != domain.OrderStatusFilled {
		t.Fatalf("Expected FILLED, got %s", got.Status)
	}
	if !got.AvgFillPrice.Equal(dec("51000")) {
		t.Errorf("Expected fill at limit 51000, got %s", got.AvgFillPrice)
	}
}

func TestSimulator_CancelSemantics(t *testing.T) {
	s, _, _ := newTestSim(Config{MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))

	order, err := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeLimit, dec("0.1"), dec("49000"))
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}

	if err := s.CancelOrder(order.ID); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	got, _ := s.GetOrder(order.ID)
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("Expected CANCELLED, got %s", got.Status)
	}

	// Cancelling a terminal order is a state error
	err = s.CancelOrder(order.ID)
	var ste *domain.StateTransitionError
	if !errors.As(err, &ste) {
		t.Fatalf("Expected StateTransitionError, got %v", err)
	}
	if !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Error("StateTransitionError must unwrap to sentinel")
	}

	if err := s.CancelOrder("no-such-order"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}

	// A cancelled order never fills
	s.OnPriceTick("BTCUSDT", dec("48000"))
	got, _ = s.GetOrder(order.ID)
	if got.Status != domain.OrderStatusCancelled {
		t.Errorf("Cancelled order changed to %s", got.Status)
	}
}

func TestSimulator_CancelWinsOverInFlightFill(t *testing.T) {
	s, l, _ := newTestSim(Config{MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))

	order, err := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeLimit, dec("0.1"), dec("49000"))
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if err := s.CancelOrder(order.ID); err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}

	// A tick scan may have collected the order just before the cancel
	// landed. The fill must observe the terminal status and walk away:
	// no FILLED overwrite, no money movement.
	lock := s.symbolLock("BTCUSDT")
	lock.Lock()
	s.executeFill(s.orders[order.ID], dec("49000"))
	lock.Unlock()

	got, _ := s.GetOrder(order.ID)
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("Cancelled order overwritten to %s", got.Status)
	}
	if !l.AvailableBalance().Equal(dec("10000")) {
		t.Errorf("Balance moved for a cancelled order: %s", l.AvailableBalance())
	}
	if got := len(s.GetRecentTrades(10)); got != 0 {
		t.Errorf("Expected no trades, got %d", got)
	}
}

func TestSimulator_StopOrdersCarryStopPrice(t *testing.T) {
	s, _, _ := newTestSim(Config{MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))
	if _, err := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, dec("0.2"), decimal.Zero); err != nil {
		t.Fatalf("Seed buy failed: %v", err)
	}

	stop, err := s.SubmitOrder("BTCUSDT", domain.SideSell, domain.OrderTypeStopLoss, dec("0.1"), dec("49000"))
	if err != nil {
		t.Fatalf("Stop submit failed: %v", err)
	}
	if !stop.StopPrice.Equal(dec("49000")) {
		t.Errorf("Expected stop price 49000, got %s", stop.StopPrice)
	}
	if !stop.LimitPrice.IsZero() {
		t.Errorf("Stop order must not carry a limit price, got %s", stop.LimitPrice)
	}

	take, err := s.SubmitOrder("BTCUSDT", domain.SideSell, domain.OrderTypeTakeProfit, dec("0.1"), dec("52000"))
	if err != nil {
		t.Fatalf("Take-profit submit failed: %v", err)
	}
	if !take.StopPrice.Equal(dec("52000")) {
		t.Errorf("Expected trigger 52000, got %s", take.StopPrice)
	}

	// The stop fires at market; the take-profit fills at its level
	s.OnPriceTick("BTCUSDT", dec("48500"))
	got, _ := s.GetOrder(stop.ID)
	if got.Status != domain.OrderStatusFilled || !got.AvgFillPrice.Equal(dec("48500")) {
		t.Errorf("Stop fill: status=%s price=%s", got.Status, got.AvgFillPrice)
	}

	s.OnPriceTick("BTCUSDT", dec("52300"))
	got, _ = s.GetOrder(take.ID)
	if got.Status != domain.OrderStatusFilled || !got.AvgFillPrice.Equal(dec("52000")) {
		t.Errorf("Take-profit fill: status=%s price=%s", got.Status, got.AvgFillPrice)
	}
}

func TestSimulator_Validation(t *testing.T) {
	s, _, _ := newTestSim(Config{MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))

	cases := []struct {
		name              string
		symbol, side, typ string
		qty, limit        decimal.Decimal
	}{
		{"empty symbol", "", domain.SideBuy, domain.OrderTypeMarket, dec("1"), decimal.Zero},
		{"bad side", "BTCUSDT", "HOLD", domain.OrderTypeMarket, dec("1"), decimal.Zero},
		{"bad type", "BTCUSDT", domain.SideBuy, "ICEBERG", dec("1"), decimal.Zero},
		{"zero quantity", "BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, decimal.Zero, decimal.Zero},
		{"negative quantity", "BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, dec("-1"), decimal.Zero},
		{"limit without price", "BTCUSDT", domain.SideBuy, domain.OrderTypeLimit, dec("1"), decimal.Zero},
		{"stop without price", "BTCUSDT", domain.SideSell, domain.OrderTypeStopLoss, dec("1"), decimal.Zero},
		{"unknown symbol", "DOGEUSDT", domain.SideBuy, domain.OrderTypeMarket, dec("1"), decimal.Zero},
	}
	for _, tc := range cases {
		_, err := s.SubmitOrder(tc.symbol, tc.side, tc.typ, tc.qty, tc.limit)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}
}

func TestSimulator_BalanceAndPositionPrechecks(t *testing.T) {
	s, _, _ := newTestSim(Config{MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))

	// 1 BTC * 50000 = 50000 > 10000 balance (position cap is 0.9*10000)
	_, err := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, dec("1"), decimal.Zero)
	if !errors.Is(err, domain.ErrRiskLimitExceeded) && !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Errorf("Expected rejection of oversized buy, got %v", err)
	}

	_, err = s.SubmitOrder("BTCUSDT", domain.SideSell, domain.OrderTypeMarket, dec("0.1"), decimal.Zero)
	if !errors.Is(err, domain.ErrInsufficientPosition) {
		t.Errorf("Expected ErrInsufficientPosition with no holdings, got %v", err)
	}
}

func TestSimulator_FillTimeRejection(t *testing.T) {
	s, _, _ := newTestSim(Config{MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))
	if _, err := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, dec("0.1"), decimal.Zero); err != nil {
		t.Fatalf("Seed buy failed: %v", err)
	}

	// Rest a sell for the whole position, then sell it at market. The
	// resting order passes submission checks but must reject at fill time.
	resting, err := s.SubmitOrder("BTCUSDT", domain.SideSell, domain.OrderTypeLimit, dec("0.1"), dec("52000"))
	if err != nil {
		t.Fatalf("Limit sell failed: %v", err)
	}
	if _, err := s.SubmitOrder("BTCUSDT", domain.SideSell, domain.OrderTypeMarket, dec("0.1"), decimal.Zero); err != nil {
		t.Fatalf("Market sell failed: %v", err)
	}

	s.OnPriceTick("BTCUSDT", dec("52000"))
	got, _ := s.GetOrder(resting.ID)
	if got.Status != domain.OrderStatusRejected {
		t.Errorf("Expected REJECTED at fill time, got %s", got.Status)
	}
}

func TestSimulator_StopLossLiquidation(t *testing.T) {
	s, l, g := newTestSim(Config{MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))
	if _, err := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, dec("0.1"), decimal.Zero); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	g.SetStopLoss("BTCUSDT", dec("50000"), risk.PositionLong)

	// Price falls through the 49000 stop: the full position is closed
	s.OnPriceTick("BTCUSDT", dec("48000"))

	if pos, _ := l.Position("BTCUSDT"); pos.Quantity.IsPositive() {
		t.Error("Expected position liquidated on stop")
	}
	trades := s.GetRecentTrades(10)
	if len(trades) != 2 {
		t.Fatalf("Expected 2 trades, got %d", len(trades))
	}
	last := trades[len(trades)-1]
	if last.Side != domain.SideSell || !last.Price.Equal(dec("48000")) {
		t.Errorf("Unexpected liquidation fill: %+v", last)
	}
}

func TestSimulator_ExecuteSignal(t *testing.T) {
	s, l, _ := newTestSim(Config{MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))

	buySig := &domain.Signal{Direction: domain.SideBuy, Strength: 0.9, Price: dec("50000")}
	order, err := s.ExecuteSignal(buySig, "BTCUSDT", dec("0.3"))
	if err != nil {
		t.Fatalf("ExecuteSignal buy failed: %v", err)
	}
	if order == nil || order.Status != domain.OrderStatusFilled {
		t.Fatal("Expected filled buy order")
	}
	// 30% of 10000 = 3000 budget at 50000 = 0.06 BTC
	if !order.Quantity.Equal(dec("0.06")) {
		t.Errorf("Expected quantity 0.06, got %s", order.Quantity)
	}

	sellSig := &domain.Signal{Direction: domain.SideSell, Strength: 0.9, Price: dec("50000")}
	order, err = s.ExecuteSignal(sellSig, "BTCUSDT", dec("0.3"))
	if err != nil {
		t.Fatalf("ExecuteSignal sell failed: %v", err)
	}
	if order == nil || !order.Quantity.Equal(dec("0.06")) {
		t.Fatal("Expected sell of the full position")
	}
	if pos, _ := l.Position("BTCUSDT"); pos.Quantity.IsPositive() {
		t.Error("Position must be closed after sell signal")
	}

	// Sell with no position: skipped, not failed
	order, err = s.ExecuteSignal(sellSig, "BTCUSDT", dec("0.3"))
	if err != nil || order != nil {
		t.Errorf("Expected silent skip, got order=%v err=%v", order, err)
	}
}

func TestSimulator_ExpireAndCancelAll(t *testing.T) {
	s, _, _ := newTestSim(Config{MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))

	o1, _ := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeLimit, dec("0.01"), dec("49000"))
	o2, _ := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeLimit, dec("0.01"), dec("48000"))

	if err := s.ExpireOrder(o1.ID); err != nil {
		t.Fatalf("ExpireOrder failed: %v", err)
	}
	got, _ := s.GetOrder(o1.ID)
	if got.Status != domain.OrderStatusExpired {
		t.Errorf("Expected EXPIRED, got %s", got.Status)
	}

	if n := s.CancelAllOpen(); n != 1 {
		t.Errorf("Expected 1 cancelled, got %d", n)
	}
	got, _ = s.GetOrder(o2.ID)
	if got.Status != domain.OrderStatusCancelled {
		t.Errorf("Expected CANCELLED, got %s", got.Status)
	}
}

func TestSimulator_SnapshotAfterFills(t *testing.T) {
	s, _, _ := newTestSim(Config{CommissionRate: dec("0.001"), MinTradeAmount: dec("10")})
	s.OnPriceTick("BTCUSDT", dec("50000"))
	if _, err := s.SubmitOrder("BTCUSDT", domain.SideBuy, domain.OrderTypeMarket, dec("0.1"), decimal.Zero); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	s.OnPriceTick("BTCUSDT", dec("60000"))

	snap := s.GetPortfolioSnapshot()
	// 4995 cash + 6000 position
	if !snap.TotalValue.Equal(dec("10995")) {
		t.Errorf("Expected total 10995, got %s", snap.TotalValue)
	}
	pos, ok := snap.Find("BTCUSDT")
	if !ok || !pos.UnrealizedPnL.Equal(dec("1000")) {
		t.Errorf("Unexpected snapshot position: %+v", pos)
	}
}
