package logic

import (
	"testing"
	"time"
)

func flatSeries(n int, price float64) PriceSeries {
	s := make(PriceSeries, n)
	for i := range s {
		s[i] = price
	}
	return s
}

func TestComputeFromPricesTieBreaksToEarliest(t *testing.T) {
	series := flatSeries(24, 9)
	series[0], series[1], series[2], series[3] = 5, 3, 3, 8
	now := time.Date(2026, 1, 10, 0, 20, 0, 0, time.UTC)

	got := ComputeFromPrices(series, now, Config{})
	want := time.Date(2026, 1, 10, 1, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestComputeFromPricesIgnoresPastHours(t *testing.T) {
	series := flatSeries(48, 20)
	series[2] = 1   // earlier today, already gone
	series[16] = 10 // later today
	series[27] = 4  // tomorrow 03:00
	series[30] = 4  // tie, later
	now := time.Date(2026, 1, 10, 14, 5, 0, 0, time.UTC)

	got := ComputeFromPrices(series, now, Config{})
	want := time.Date(2026, 1, 11, 3, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestComputeFromPricesAppliesOffset(t *testing.T) {
	series := flatSeries(24, 10)
	series[22] = 2
	now := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
	cfg := Config{StartOffset: -25 * time.Minute}

	got := ComputeFromPrices(series, now, cfg)
	want := time.Date(2026, 1, 10, 21, 35, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestComputeFromPricesCurrentHourCheapest(t *testing.T) {
	series := flatSeries(24, 10)
	series[9] = 1
	now := time.Date(2026, 1, 10, 9, 45, 30, 0, time.UTC)

	got := ComputeFromPrices(series, now, Config{})
	want := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if !got.Before(now) {
		t.Error("expected start in the past when the current hour is cheapest")
	}
}

func TestComputeFromPricesUsesLocalHour(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	series := flatSeries(24, 10)
	series[1] = 9
	series[23] = 1
	// 00:30 UTC is 01:30 CET: the scan starts at index 1, not 0.
	now := time.Date(2026, 1, 10, 0, 30, 0, 0, time.UTC).In(cet)

	got := ComputeFromPrices(series, now, Config{})
	want := time.Date(2026, 1, 10, 23, 0, 0, 0, cet)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestComputeFallbackScenario(t *testing.T) {
	cfg := Config{
		IdleTimeout:  1800 * time.Second,
		StartOffset:  -1500 * time.Second,
		MinPower:     6,
		FallbackHour: 3,
	}
	now := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)

	got := ComputeFallback(now, cfg)
	want := time.Date(2026, 1, 11, 2, 35, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestComputeFallbackToday(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before hour", time.Date(2026, 1, 10, 1, 10, 0, 0, time.UTC), time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)},
		{"exactly on hour", time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC), time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)},
		{"inside hour", time.Date(2026, 1, 10, 3, 30, 0, 0, time.UTC), time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)},
		{"hour after", time.Date(2026, 1, 10, 4, 0, 0, 0, time.UTC), time.Date(2026, 1, 11, 3, 0, 0, 0, time.UTC)},
		{"late evening", time.Date(2026, 1, 10, 23, 59, 59, 0, time.UTC), time.Date(2026, 1, 11, 3, 0, 0, 0, time.UTC)},
		{"month end", time.Date(2026, 1, 31, 22, 0, 0, 0, time.UTC), time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeFallback(tt.now, Config{FallbackHour: 3})
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeFallbackNeverBeforeNowWithoutOffset(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for hour := 0; hour < 24; hour++ {
		cfg := Config{FallbackHour: hour}
		for now := day; now.Before(day.Add(24 * time.Hour)); now = now.Add(7*time.Minute + 13*time.Second) {
			if now.Hour() == hour {
				// Inside the fallback hour the start is this hour's top, already past.
				continue
			}
			got := ComputeFallback(now, cfg)
			if got.Before(now) {
				t.Fatalf("hour=%d now=%v: got %v before now", hour, now, got)
			}
			if got.Sub(now) > 24*time.Hour {
				t.Fatalf("hour=%d now=%v: got %v more than a day ahead", hour, now, got)
			}
		}
	}
}

func TestComputeFallbackInsideHourIsStale(t *testing.T) {
	cfg := Config{FallbackHour: 3, StartOffset: -25 * time.Minute}
	now := time.Date(2026, 1, 10, 3, 30, 0, 0, time.UTC)

	got := ComputeFallback(now, cfg)
	want := time.Date(2026, 1, 10, 2, 35, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if !got.Before(now) {
		t.Error("start inside the fallback hour should already be past")
	}
}

func TestComputeFallbackNegativeOffsetMayBePast(t *testing.T) {
	cfg := Config{FallbackHour: 3, StartOffset: -30 * time.Minute}
	now := time.Date(2026, 1, 10, 2, 50, 0, 0, time.UTC)

	got := ComputeFallback(now, cfg)
	want := time.Date(2026, 1, 10, 2, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestChooseStart(t *testing.T) {
	now := time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)
	cfg := Config{FallbackHour: 3}

	s := ChooseStart(nil, now, cfg)
	if s.Basis != BasisFallback {
		t.Errorf("nil series: basis %s, want FALLBACK", s.Basis)
	}

	s = ChooseStart(flatSeries(14, 1), now, cfg)
	if s.Basis != BasisFallback {
		t.Errorf("short series: basis %s, want FALLBACK", s.Basis)
	}
	if !s.Start.Equal(time.Date(2026, 1, 11, 3, 0, 0, 0, time.UTC)) {
		t.Errorf("short series: start %v", s.Start)
	}

	s = ChooseStart(flatSeries(15, 1), now, cfg)
	if s.Basis != BasisPrices {
		t.Errorf("series covering current hour: basis %s, want PRICES", s.Basis)
	}
	if !s.Start.Equal(time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("series covering current hour: start %v", s.Start)
	}
}
