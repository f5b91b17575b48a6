package strategy

import (
	"fmt"

	"github.com/quantforge/backtest-engine/pkg/params"
	"github.com/quantforge/backtest-engine/pkg/types"
)

// DCAStrategy buys dips: it tracks the highest price since the last
// exit and enters long once price has dropped drop_pct from that high,
// exiting after a rebound_pct recovery from the entry. With use_wick
// enabled the drop trigger is evaluated against the bar low instead of
// the close, catching intrabar flushes.
type DCAStrategy struct {
	drop    float64
	rebound float64
	useWick bool
	bound   bool

	high  float64
	entry float64
}

// NewDCAStrategy creates an unbound DCA strategy.
func NewDCAStrategy() *DCAStrategy {
	return &DCAStrategy{}
}

func (s *DCAStrategy) Name() string { return "dca" }

func (s *DCAStrategy) Domains() []params.Domain {
	return append([]params.Domain{
		params.Number("drop_pct", 0.5, 15, 0.1),
		params.Number("rebound_pct", 0.5, 15, 0.1),
		params.Bool("use_wick"),
	}, RiskDomains()...)
}

func (s *DCAStrategy) Bind(p params.Set) error {
	if s.bound {
		return fmt.Errorf("dca strategy already bound")
	}
	s.bound = true
	s.drop = p.Number("drop_pct", 2) / 100
	s.rebound = p.Number("rebound_pct", 2) / 100
	s.useWick = p.Flag("use_wick", false)
	return nil
}

func (s *DCAStrategy) OnBar(window []types.OHLCV, inPosition bool) Signal {
	bar := window[len(window)-1]

	if inPosition {
		if bar.Close >= s.entry*(1+s.rebound) {
			s.high = bar.Close
			s.entry = 0
			return SignalExit
		}
		return SignalHold
	}

	if bar.Close > s.high {
		s.high = bar.Close
	}
	trigger := bar.Close
	if s.useWick {
		trigger = bar.Low
	}
	if s.high > 0 && trigger <= s.high*(1-s.drop) {
		s.entry = bar.Close
		return SignalEnterLong
	}
	return SignalHold
}
