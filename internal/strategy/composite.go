package strategy

import (
	"fmt"
	"strconv"
	"time"

	"simtrader/internal/domain"
)

// Composite runs several generators and merges their signals by weight.
// Each fired signal contributes strength × weight/Σ(weights of fired
// generators) to its side; the winning side is emitted only when its
// aggregate exceeds 0.5 and the other side.
type Composite struct {
	name       string
	components []SignalGenerator
	weights    []float64

	log signalLog
}

// NewComposite creates a weighted composite over the given generators.
func NewComposite(name string, components []SignalGenerator, weights []float64) (*Composite, error) {
	if len(components) == 0 {
		return nil, fmt.Errorf("composite %q: no component generators", name)
	}
	if len(weights) != len(components) {
		return nil, fmt.Errorf("composite %q: %d weights for %d components",
			name, len(weights), len(components))
	}
	return &Composite{
		name:       name,
		components: components,
		weights:    weights,
		log:        newSignalLog(),
	}, nil
}

func (s *Composite) Name() string { return s.name }

func (s *Composite) Generate(candles []domain.Candle) *domain.Signal {
	if len(candles) == 0 {
		return nil
	}

	var fired []*domain.Signal
	var firedWeights []float64
	var totalWeight float64
	for i, gen := range s.components {
		if sig := gen.Generate(candles); sig != nil {
			fired = append(fired, sig)
			firedWeights = append(firedWeights, s.weights[i])
			totalWeight += s.weights[i]
		}
	}
	if len(fired) == 0 || totalWeight == 0 {
		return nil
	}

	var buyStrength, sellStrength float64
	for i, sig := range fired {
		normalized := firedWeights[i] / totalWeight
		switch sig.Direction {
		case domain.SideBuy:
			buyStrength += sig.Strength * normalized
		case domain.SideSell:
			sellStrength += sig.Strength * normalized
		}
	}

	var direction string
	var strength float64
	switch {
	case buyStrength > sellStrength && buyStrength > 0.5:
		direction, strength = domain.SideBuy, buyStrength
	case sellStrength > buyStrength && sellStrength > 0.5:
		direction, strength = domain.SideSell, sellStrength
	default:
		return nil
	}

	sig := domain.Signal{
		Direction: direction,
		Strength:  strength,
		Price:     candles[len(candles)-1].Close,
		Timestamp: time.Now(),
		Metadata: map[string]string{
			"buy_strength":  strconv.FormatFloat(buyStrength, 'f', 4, 64),
			"sell_strength": strconv.FormatFloat(sellStrength, 'f', 4, 64),
			"components":    strconv.Itoa(len(fired)),
		},
	}
	s.log.record(sig)
	return &sig
}

func (s *Composite) History() []domain.Signal { return s.log.snapshot() }

// Stats summarizes the generator's emitted signals.
func (s *Composite) Stats() Stats { return s.log.stats() }
