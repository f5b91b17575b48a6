package strategy

import (
	"fmt"

	"github.com/quantforge/backtest-engine/pkg/params"
	"github.com/quantforge/backtest-engine/pkg/types"
)

// GridStrategy lays levels below (long side) or above (short side) an
// anchor price at fixed percentage spacing. Crossing the next level
// opens a position; a move of one spacing back in the position's favor
// closes it and re-anchors the grid at the current close.
type GridStrategy struct {
	spacing float64 // fractional, e.g. 0.01 for 1%
	levels  int
	short   bool

	anchor float64
	level  int
	entry  float64
}

// NewGridStrategy creates an unbound grid strategy.
func NewGridStrategy() *GridStrategy {
	return &GridStrategy{}
}

func (s *GridStrategy) Name() string { return "grid" }

func (s *GridStrategy) Domains() []params.Domain {
	return append([]params.Domain{
		params.Number("spacing_pct", 0.2, 10, 0.1),
		params.Number("levels", 1, 10, 1),
		params.Enum("side", "long", "short"),
	}, RiskDomains()...)
}

func (s *GridStrategy) Bind(p params.Set) error {
	if s.spacing != 0 {
		return fmt.Errorf("grid strategy already bound")
	}
	s.spacing = p.Number("spacing_pct", 1) / 100
	s.levels = int(p.Number("levels", 3))
	s.short = p.Choice("side", "long") == "short"
	return nil
}

func (s *GridStrategy) OnBar(window []types.OHLCV, inPosition bool) Signal {
	close := window[len(window)-1].Close
	if s.anchor == 0 {
		s.anchor = close
		return SignalHold
	}

	if inPosition {
		if s.short {
			if close <= s.entry*(1-s.spacing) {
				s.reset(close)
				return SignalExit
			}
		} else if close >= s.entry*(1+s.spacing) {
			s.reset(close)
			return SignalExit
		}
		return SignalHold
	}

	if s.level >= s.levels {
		return SignalHold
	}
	next := float64(s.level + 1)
	if s.short {
		trigger := s.anchor * (1 + next*s.spacing)
		if close >= trigger {
			s.level++
			s.entry = close
			return SignalEnterShort
		}
	} else {
		trigger := s.anchor * (1 - next*s.spacing)
		if close <= trigger {
			s.level++
			s.entry = close
			return SignalEnterLong
		}
	}
	return SignalHold
}

func (s *GridStrategy) reset(anchor float64) {
	s.anchor = anchor
	s.level = 0
	s.entry = 0
}
