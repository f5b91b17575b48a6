package strategy

import (
	"fmt"

	"github.com/quantforge/backtest-engine/internal/indicators"
	"github.com/quantforge/backtest-engine/pkg/params"
	"github.com/quantforge/backtest-engine/pkg/types"
)

// RSIStrategy enters long when RSI crosses down into the oversold zone
// and exits when it crosses up into the overbought zone. Crossings are
// detected against the previous bar's RSI, so a series that starts
// inside a zone does not fire immediately.
type RSIStrategy struct {
	rsi        *indicators.RSI
	oversold   float64
	overbought float64

	prev    float64
	hasPrev bool
}

// NewRSIStrategy creates an unbound RSI strategy.
func NewRSIStrategy() *RSIStrategy {
	return &RSIStrategy{}
}

func (s *RSIStrategy) Name() string { return "rsi" }

func (s *RSIStrategy) Domains() []params.Domain {
	return append([]params.Domain{
		params.Number("period", 2, 50, 1),
		params.Number("oversold", 10, 45, 1),
		params.Number("overbought", 55, 90, 1),
	}, RiskDomains()...)
}

func (s *RSIStrategy) Bind(p params.Set) error {
	if s.rsi != nil {
		return fmt.Errorf("rsi strategy already bound")
	}
	s.rsi = indicators.NewRSI(int(p.Number("period", 14)))
	s.oversold = p.Number("oversold", 30)
	s.overbought = p.Number("overbought", 70)
	return nil
}

func (s *RSIStrategy) OnBar(window []types.OHLCV, inPosition bool) Signal {
	closes := make([]float64, len(window))
	for i, b := range window {
		closes[i] = b.Close
	}

	value, err := s.rsi.Calculate(closes)
	if err != nil {
		return SignalHold // warm-up
	}

	defer func() {
		s.prev = value
		s.hasPrev = true
	}()

	if !s.hasPrev {
		return SignalHold
	}

	if !inPosition && s.prev > s.oversold && value <= s.oversold {
		return SignalEnterLong
	}
	if inPosition && s.prev < s.overbought && value >= s.overbought {
		return SignalExit
	}
	return SignalHold
}
