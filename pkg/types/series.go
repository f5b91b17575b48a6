package types

import (
	"fmt"
	"time"
)

// PriceSeries is an immutable, ordered sequence of OHLCV bars with
// strictly increasing timestamps. All validation happens at
// construction time so downstream code can iterate without re-checking.
type PriceSeries struct {
	symbol    string
	timeframe Timeframe
	bars      []OHLCV
}

// NewPriceSeries validates and wraps a slice of bars. The slice is
// copied, so later mutation of the caller's slice cannot affect the
// series. Bars must be sorted by timestamp with no duplicates.
func NewPriceSeries(symbol string, timeframe Timeframe, bars []OHLCV) (*PriceSeries, error) {
	if !timeframe.Valid() {
		return nil, fmt.Errorf("unknown timeframe %q", timeframe)
	}
	for i, b := range bars {
		if b.High < b.Low {
			return nil, fmt.Errorf("bar %d: high %.8f below low %.8f", i, b.High, b.Low)
		}
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return nil, fmt.Errorf("bar %d: prices must be positive", i)
		}
		if i > 0 && !bars[i-1].Timestamp.Before(b.Timestamp) {
			return nil, fmt.Errorf("bar %d: timestamp %s not after previous %s",
				i, b.Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	copied := make([]OHLCV, len(bars))
	copy(copied, bars)
	return &PriceSeries{symbol: symbol, timeframe: timeframe, bars: copied}, nil
}

// Symbol returns the instrument identifier of the series.
func (s *PriceSeries) Symbol() string { return s.symbol }

// Timeframe returns the bar interval of the series.
func (s *PriceSeries) Timeframe() Timeframe { return s.timeframe }

// Len returns the number of bars.
func (s *PriceSeries) Len() int { return len(s.bars) }

// Bar returns the bar at index i.
func (s *PriceSeries) Bar(i int) OHLCV { return s.bars[i] }

// First returns the earliest bar. Panics on an empty series.
func (s *PriceSeries) First() OHLCV { return s.bars[0] }

// Last returns the latest bar. Panics on an empty series.
func (s *PriceSeries) Last() OHLCV { return s.bars[len(s.bars)-1] }

// Bars returns a copy of the underlying bars.
func (s *PriceSeries) Bars() []OHLCV {
	out := make([]OHLCV, len(s.bars))
	copy(out, s.bars)
	return out
}

// Window returns the bars up to and including index i. The returned
// slice shares storage with the series; callers must treat it as
// read-only.
func (s *PriceSeries) Window(i int) []OHLCV {
	return s.bars[:i+1]
}

// Slice returns the sub-series whose bars fall inside [from, to],
// inclusive. Zero times leave the corresponding bound open.
func (s *PriceSeries) Slice(from, to time.Time) (*PriceSeries, error) {
	lo, hi := 0, len(s.bars)
	if !from.IsZero() {
		for lo < hi && s.bars[lo].Timestamp.Before(from) {
			lo++
		}
	}
	if !to.IsZero() {
		for hi > lo && s.bars[hi-1].Timestamp.After(to) {
			hi--
		}
	}
	if lo >= hi {
		return nil, fmt.Errorf("no bars between %s and %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	// Sub-slicing keeps the invariants, no revalidation needed.
	return &PriceSeries{symbol: s.symbol, timeframe: s.timeframe, bars: s.bars[lo:hi]}, nil
}

// Covers reports whether the closed range [from, to] lies within the
// series bounds. Zero times are treated as open and always covered.
func (s *PriceSeries) Covers(from, to time.Time) bool {
	if len(s.bars) == 0 {
		return false
	}
	if !from.IsZero() && from.Before(s.bars[0].Timestamp) {
		return false
	}
	if !to.IsZero() && to.After(s.bars[len(s.bars)-1].Timestamp) {
		return false
	}
	return true
}
