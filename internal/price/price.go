// Package price fetches hourly electricity prices for today and tomorrow.
package price

import (
	"context"
	"errors"
	"sync"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

// ErrNoPrices is returned when the provider answered but had no usable prices.
var ErrNoPrices = errors.New("price: no prices in response")

// Source fetches an hour-indexed price series starting at hour 0 of today.
type Source interface {
	Fetch(ctx context.Context) (logic.PriceSeries, error)
}

// FakeSource is a test double returning scripted results.
type FakeSource struct {
	mu     sync.Mutex
	series logic.PriceSeries
	err    error
	calls  int

	// Block, if set, makes Fetch wait until it is closed or ctx is done.
	Block chan struct{}
}

// NewFakeSource returns a source that yields series, or err when non-nil.
func NewFakeSource(series logic.PriceSeries, err error) *FakeSource {
	return &FakeSource{series: series, err: err}
}

// Fetch returns the scripted series or error.
func (f *FakeSource) Fetch(ctx context.Context) (logic.PriceSeries, error) {
	f.mu.Lock()
	f.calls++
	block := f.Block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append(logic.PriceSeries(nil), f.series...), nil
}

// Set replaces the scripted result.
func (f *FakeSource) Set(series logic.PriceSeries, err error) {
	f.mu.Lock()
	f.series = series
	f.err = err
	f.mu.Unlock()
}

// Calls returns how many times Fetch was called.
func (f *FakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
