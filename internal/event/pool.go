package event

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
)

// EventPool provides sync.Pool for high-frequency event allocation.
// Use this to reduce GC pressure in the hotpath.
//
// Usage:
//
//	ev := AcquirePriceTickEvent()
//	ev.Symbol = "BTCUSDT"
//	// ... use event ...
//	ReleasePriceTickEvent(ev)  // Return to pool after processing
var priceTickPool = sync.Pool{
	New: func() interface{} {
		return &PriceTickEvent{}
	},
}

// AcquirePriceTickEvent gets a PriceTickEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquirePriceTickEvent() *PriceTickEvent {
	return priceTickPool.Get().(*PriceTickEvent)
}

// ReleasePriceTickEvent returns a PriceTickEvent to the pool.
// The event is reset to zero values before being pooled.
func ReleasePriceTickEvent(ev *PriceTickEvent) {
	if ev == nil {
		return
	}
	ev.Symbol = ""
	ev.Price = decimal.Decimal{}
	ev.Timestamp = time.Time{}

	priceTickPool.Put(ev)
}

// CandleEvent pool
var candlePool = sync.Pool{
	New: func() interface{} {
		return &CandleEvent{}
	},
}

// AcquireCandleEvent gets a CandleEvent from the pool.
func AcquireCandleEvent() *CandleEvent {
	return candlePool.Get().(*CandleEvent)
}

// ReleaseCandleEvent returns a CandleEvent to the pool.
func ReleaseCandleEvent(ev *CandleEvent) {
	if ev == nil {
		return
	}
	ev.Symbol = ""
	ev.Candle = domain.Candle{}

	candlePool.Put(ev)
}

// Warmup pre-allocates event objects to reduce GC pressure at startup.
// It acquires and releases a batch of events.
func Warmup() {
	const batchSize = 1000

	tickEvs := make([]*PriceTickEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		tickEvs = append(tickEvs, AcquirePriceTickEvent())
	}
	for _, ev := range tickEvs {
		ReleasePriceTickEvent(ev)
	}

	candleEvs := make([]*CandleEvent, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		candleEvs = append(candleEvs, AcquireCandleEvent())
	}
	for _, ev := range candleEvs {
		ReleaseCandleEvent(ev)
	}
}
