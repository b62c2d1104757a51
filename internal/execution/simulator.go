package execution

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
	"simtrader/internal/infra"
	"simtrader/internal/ledger"
	"simtrader/internal/risk"
)

// Config holds the simulated exchange parameters. Rates are fractions
// (0.001 means 0.1%).
type Config struct {
	CommissionRate decimal.Decimal
	Slippage       decimal.Decimal
	MinTradeAmount decimal.Decimal
}

// FillHook is invoked after every successful fill, outside the simulator
// mutex but under the symbol's fill lock. Hooks must not submit, cancel or
// expire orders synchronously.
type FillHook func(order domain.Order, trade domain.Trade, realized decimal.Decimal)

// Simulator is a paper exchange: it accepts orders, fills them against
// incoming price ticks with slippage and commission, and settles fills
// through the ledger.
type Simulator struct {
	cfg    Config
	ledger *ledger.Ledger
	gate   *risk.Gate

	mu      sync.Mutex
	orders  map[string]*domain.Order
	pending map[string]map[string]*domain.Order // symbol -> order ID -> order
	prices  map[string]decimal.Decimal
	locks   map[string]*sync.Mutex // per-symbol fill serialization

	onFill FillHook
	now    func() time.Time
}

// NewSimulator creates a simulator backed by the given ledger and risk gate.
func NewSimulator(cfg Config, lg *ledger.Ledger, gate *risk.Gate) *Simulator {
	return &Simulator{
		cfg:     cfg,
		ledger:  lg,
		gate:    gate,
		orders:  make(map[string]*domain.Order),
		pending: make(map[string]map[string]*domain.Order),
		prices:  make(map[string]decimal.Decimal),
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// SetFillHook registers the post-fill callback. Must be called before the
// first tick is delivered.
func (s *Simulator) SetFillHook(hook FillHook) {
	s.onFill = hook
}

// symbolLock returns the fill mutex for a symbol, creating it on first use.
func (s *Simulator) symbolLock(symbol string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[symbol] = lock
	}
	return lock
}

func (s *Simulator) lastPrice(symbol string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.prices[symbol]
	return price, ok
}

// isStopType reports whether the order type triggers off a stop level.
func isStopType(orderType string) bool {
	return orderType == domain.OrderTypeStopLoss || orderType == domain.OrderTypeTakeProfit
}

// validateOrder checks the request's structural fields before any state is
// touched.
func validateOrder(symbol, side, orderType string, quantity, price decimal.Decimal) error {
	if symbol == "" {
		return &domain.ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if side != domain.SideBuy && side != domain.SideSell {
		return &domain.ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	switch orderType {
	case domain.OrderTypeMarket, domain.OrderTypeLimit, domain.OrderTypeStopLoss, domain.OrderTypeTakeProfit:
	default:
		return &domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown order type %q", orderType)}
	}
	if !quantity.IsPositive() {
		return &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if orderType == domain.OrderTypeLimit && !price.IsPositive() {
		return &domain.ValidationError{Field: "limit_price", Reason: "required for limit orders"}
	}
	if isStopType(orderType) && !price.IsPositive() {
		return &domain.ValidationError{Field: "stop_price", Reason: "required for stop orders"}
	}
	return nil
}

// SubmitOrder validates, risk-checks and registers a new order. price is
// the limit price for LIMIT orders and the trigger level for stop types;
// market orders ignore it. Market orders fill immediately at the last seen
// price; other types rest until a tick crosses their level.
func (s *Simulator) SubmitOrder(symbol, side, orderType string, quantity, price decimal.Decimal) (*domain.Order, error) {
	if err := validateOrder(symbol, side, orderType, quantity, price); err != nil {
		return nil, err
	}

	refPrice, ok := s.lastPrice(symbol)
	if !ok {
		return nil, &domain.ValidationError{Field: "symbol", Reason: fmt.Sprintf("no market data for %s", symbol)}
	}
	checkPrice := refPrice
	if orderType != domain.OrderTypeMarket {
		checkPrice = price
	}

	if err := s.gate.CanTrade(symbol, side, quantity, checkPrice); err != nil {
		infra.GlobalMetrics.RecordOrderRejected()
		return nil, err
	}

	// Advisory pre-checks at submission time. The binding check happens
	// again inside the ledger at fill time.
	if side == domain.SideBuy {
		estimate := quantity.Mul(checkPrice)
		estimate = estimate.Add(estimate.Mul(s.cfg.CommissionRate))
		if s.ledger.AvailableBalance().LessThan(estimate) {
			return nil, domain.ErrInsufficientBalance
		}
	} else {
		pos, held := s.ledger.Position(symbol)
		if !held || pos.Quantity.LessThan(quantity) {
			return nil, domain.ErrInsufficientPosition
		}
	}

	now := s.now()
	order := &domain.Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Side:      side,
		Type:      orderType,
		Quantity:  quantity,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch {
	case orderType == domain.OrderTypeLimit:
		order.LimitPrice = price
	case isStopType(orderType):
		order.StopPrice = price
	}

	s.mu.Lock()
	s.orders[order.ID] = order
	if orderType != domain.OrderTypeMarket {
		book, ok := s.pending[symbol]
		if !ok {
			book = make(map[string]*domain.Order)
			s.pending[symbol] = book
		}
		book[order.ID] = order
	}
	s.mu.Unlock()

	infra.GlobalMetrics.RecordOrderSubmitted()
	slog.Info("order submitted",
		slog.String("order_id", order.ID),
		slog.String("symbol", symbol),
		slog.String("side", side),
		slog.String("type", orderType),
		slog.String("qty", quantity.String()))

	if orderType == domain.OrderTypeMarket {
		lock := s.symbolLock(symbol)
		lock.Lock()
		s.executeFill(order, refPrice)
		lock.Unlock()
	}
	return s.copyOrder(order.ID), nil
}

// CancelOrder cancels a pending order. Cancelling a terminal order returns
// a StateTransitionError.
func (s *Simulator) CancelOrder(orderID string) error {
	return s.transitionOrder(orderID, domain.OrderStatusCancelled)
}

// ExpireOrder marks a pending order EXPIRED. Used by the engine for
// time-in-force sweeps.
func (s *Simulator) ExpireOrder(orderID string) error {
	return s.transitionOrder(orderID, domain.OrderStatusExpired)
}

// transitionOrder moves a pending order to a terminal status. It takes the
// symbol lock first so it serializes against an in-flight fill for the same
// symbol: once a fill has committed, the transition fails instead of
// overwriting a terminal state.
func (s *Simulator) transitionOrder(orderID, status string) error {
	s.mu.Lock()
	order, ok := s.orders[orderID]
	if !ok {
		s.mu.Unlock()
		return domain.ErrOrderNotFound
	}
	symbol := order.Symbol
	s.mu.Unlock()

	lock := s.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if order.IsTerminal() {
		return &domain.StateTransitionError{OrderID: orderID, Status: order.Status}
	}

	order.Status = status
	order.UpdatedAt = s.now()
	s.removePendingLocked(order)
	slog.Info("order transitioned",
		slog.String("order_id", orderID),
		slog.String("status", status))
	return nil
}

// CancelAllOpen cancels every pending order and returns how many were
// cancelled.
func (s *Simulator) CancelAllOpen() int {
	s.mu.Lock()
	symbols := make([]string, 0, len(s.pending))
	for symbol := range s.pending {
		symbols = append(symbols, symbol)
	}
	s.mu.Unlock()

	cancelled := 0
	for _, symbol := range symbols {
		lock := s.symbolLock(symbol)
		lock.Lock()
		s.mu.Lock()
		for _, order := range s.pending[symbol] {
			order.Status = domain.OrderStatusCancelled
			order.UpdatedAt = s.now()
			cancelled++
		}
		delete(s.pending, symbol)
		s.mu.Unlock()
		lock.Unlock()
	}
	if cancelled > 0 {
		slog.Info("all open orders cancelled", slog.Int("count", cancelled))
	}
	return cancelled
}

func (s *Simulator) removePendingLocked(order *domain.Order) {
	if book, ok := s.pending[order.Symbol]; ok {
		delete(book, order.ID)
		if len(book) == 0 {
			delete(s.pending, order.Symbol)
		}
	}
}

// OnPriceTick marks the symbol's price, fires risk liquidations and scans
// resting orders for fills. Ticks for different symbols proceed in
// parallel; fills for one symbol are serialized.
func (s *Simulator) OnPriceTick(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	s.prices[symbol] = price
	s.mu.Unlock()

	s.ledger.MarkPrice(symbol, price)

	lock := s.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	for _, intent := range s.gate.OnPriceTick(symbol, price) {
		s.liquidate(intent, price)
	}

	s.mu.Lock()
	book := s.pending[symbol]
	due := make([]*domain.Order, 0, len(book))
	for _, order := range book {
		if crossed(order, price) {
			due = append(due, order)
		}
	}
	s.mu.Unlock()

	for _, order := range due {
		s.executeFill(order, fillReference(order, price))
	}
}

// crossed reports whether the tick price satisfies a resting order's level.
func crossed(order *domain.Order, price decimal.Decimal) bool {
	switch order.Type {
	case domain.OrderTypeLimit:
		if order.Side == domain.SideBuy {
			return price.LessThanOrEqual(order.LimitPrice)
		}
		return price.GreaterThanOrEqual(order.LimitPrice)
	case domain.OrderTypeStopLoss:
		// Protective exit: fires when the price moves against the position.
		if order.Side == domain.SideSell {
			return price.LessThanOrEqual(order.StopPrice)
		}
		return price.GreaterThanOrEqual(order.StopPrice)
	case domain.OrderTypeTakeProfit:
		if order.Side == domain.SideSell {
			return price.GreaterThanOrEqual(order.StopPrice)
		}
		return price.LessThanOrEqual(order.StopPrice)
	}
	return false
}

// fillReference picks the price a crossed order fills at before slippage.
// Limit and take-profit orders fill at their level; stops fill at market.
func fillReference(order *domain.Order, tick decimal.Decimal) decimal.Decimal {
	switch order.Type {
	case domain.OrderTypeLimit:
		return order.LimitPrice
	case domain.OrderTypeTakeProfit:
		return order.StopPrice
	default:
		return tick
	}
}

// liquidate closes the symbol's full position with a market sell that
// bypasses the admission gate. Risk exits must not be blocked by the very
// limits that demanded them.
func (s *Simulator) liquidate(intent risk.Intent, price decimal.Decimal) {
	pos, held := s.ledger.Position(intent.Symbol)
	if !held || !pos.Quantity.IsPositive() {
		return
	}

	now := s.now()
	order := &domain.Order{
		ID:        uuid.NewString(),
		Symbol:    intent.Symbol,
		Side:      domain.SideSell,
		Type:      domain.OrderTypeMarket,
		Quantity:  pos.Quantity,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.orders[order.ID] = order
	s.mu.Unlock()

	slog.Warn("risk liquidation",
		slog.String("symbol", intent.Symbol),
		slog.String("reason", intent.Reason),
		slog.String("trigger", intent.TriggerPrice.StringFixed(2)),
		slog.String("price", price.StringFixed(2)))
	s.executeFill(order, price)
}

// executeFill applies slippage and commission, settles through the ledger
// and transitions the order. Must be called with the symbol lock held.
func (s *Simulator) executeFill(order *domain.Order, refPrice decimal.Decimal) {
	// The pending scan collects candidates before this point; a cancel that
	// won the race must stand. Terminal states are immutable.
	s.mu.Lock()
	if order.Status != domain.OrderStatusPending {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	one := decimal.NewFromInt(1)
	fillPrice := refPrice.Mul(one.Add(s.cfg.Slippage))
	if order.Side == domain.SideSell {
		fillPrice = refPrice.Mul(one.Sub(s.cfg.Slippage))
	}

	notional := order.Quantity.Mul(fillPrice)
	commission := notional.Mul(s.cfg.CommissionRate)

	trade := domain.Trade{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      fillPrice,
		Notional:   notional,
		Commission: commission,
		Timestamp:  s.now(),
	}

	realized, err := s.ledger.ApplyTrade(trade)

	s.mu.Lock()
	order.UpdatedAt = trade.Timestamp
	if err != nil {
		order.Status = domain.OrderStatusRejected
		s.removePendingLocked(order)
		s.mu.Unlock()

		infra.GlobalMetrics.RecordOrderRejected()
		slog.Warn("order rejected at fill",
			slog.String("order_id", order.ID),
			slog.String("symbol", order.Symbol),
			slog.String("error", err.Error()))
		return
	}
	order.Status = domain.OrderStatusFilled
	order.FilledQuantity = order.Quantity
	order.AvgFillPrice = fillPrice
	order.Commission = commission
	s.removePendingLocked(order)
	filled := *order
	s.mu.Unlock()

	s.gate.RecordTrade(order.Symbol, order.Side, realized)
	infra.GlobalMetrics.RecordOrderFilled()
	slog.Info("order filled",
		slog.String("order_id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", order.Side),
		slog.String("price", fillPrice.StringFixed(2)),
		slog.String("qty", order.Quantity.String()),
		slog.String("commission", commission.StringFixed(4)))

	if s.onFill != nil {
		s.onFill(filled, trade, realized)
	}
}

// ExecuteSignal turns a strategy signal into a market order. Buys size to
// positionPct of free cash; sells close the full position. A nil order with
// nil error means the signal was skipped, not failed.
func (s *Simulator) ExecuteSignal(sig *domain.Signal, symbol string, positionPct decimal.Decimal) (*domain.Order, error) {
	if sig == nil {
		return nil, nil
	}

	price, ok := s.lastPrice(symbol)
	if !ok {
		return nil, &domain.ValidationError{Field: "symbol", Reason: fmt.Sprintf("no market data for %s", symbol)}
	}

	var quantity decimal.Decimal
	switch sig.Direction {
	case domain.SideBuy:
		budget := s.ledger.AvailableBalance().Mul(positionPct)
		if budget.LessThan(s.cfg.MinTradeAmount) {
			slog.Debug("buy signal skipped, budget below minimum",
				slog.String("symbol", symbol),
				slog.String("budget", budget.StringFixed(2)))
			return nil, nil
		}
		quantity = budget.Div(price)
	case domain.SideSell:
		pos, held := s.ledger.Position(symbol)
		if !held || !pos.Quantity.IsPositive() {
			slog.Debug("sell signal skipped, no position", slog.String("symbol", symbol))
			return nil, nil
		}
		quantity = pos.Quantity
	default:
		return nil, &domain.ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", sig.Direction)}
	}

	order, err := s.SubmitOrder(symbol, sig.Direction, domain.OrderTypeMarket, quantity, decimal.Zero)
	if err != nil {
		var riskErr *domain.RiskLimitError
		if errors.As(err, &riskErr) {
			slog.Warn("signal blocked by risk limit",
				slog.String("symbol", symbol),
				slog.String("limit", riskErr.Limit),
				slog.String("reason", riskErr.Reason))
			return nil, err
		}
		return nil, err
	}
	return order, nil
}

// GetOrder returns a copy of the order, or ErrOrderNotFound.
func (s *Simulator) GetOrder(orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *order, nil
}

func (s *Simulator) copyOrder(orderID string) *domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order, ok := s.orders[orderID]; ok {
		cp := *order
		return &cp
	}
	return nil
}

// GetOpenOrders returns copies of all pending orders, optionally filtered
// by symbol (empty string matches all).
func (s *Simulator) GetOpenOrders(symbol string) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for sym, book := range s.pending {
		if symbol != "" && sym != symbol {
			continue
		}
		for _, order := range book {
			out = append(out, *order)
		}
	}
	return out
}

// GetRecentTrades returns up to limit most recent fills, oldest first.
func (s *Simulator) GetRecentTrades(limit int) []domain.Trade {
	return s.ledger.Trades(limit)
}

// GetPortfolioSnapshot returns the ledger's consistent portfolio view.
func (s *Simulator) GetPortfolioSnapshot() domain.PortfolioSnapshot {
	return s.ledger.Snapshot()
}
