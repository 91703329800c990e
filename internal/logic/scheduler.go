package logic

import "time"

// ComputeFromPrices returns the start of the cheapest hour from the current
// hour onwards, shifted by cfg.StartOffset. Ties go to the earliest hour.
//
// The series must cover the current hour (len(series) > now.Hour()); use
// ChooseStart when that is not guaranteed.
func ComputeFromPrices(series PriceSeries, now time.Time, cfg Config) time.Time {
	first := now.Hour()
	cheapest := first
	for i := first + 1; i < len(series); i++ {
		if series[i] < series[cheapest] {
			cheapest = i
		}
	}
	return hourStart(now, cheapest).Add(cfg.StartOffset)
}

// ComputeFallback returns cfg.FallbackHour:00 today while the current hour is
// at most cfg.FallbackHour, otherwise tomorrow, shifted by cfg.StartOffset.
// Inside the fallback hour, or with a negative offset, the result may be
// before now.
func ComputeFallback(now time.Time, cfg Config) time.Time {
	target := hourStart(now, cfg.FallbackHour)
	if now.Hour() > cfg.FallbackHour {
		target = hourStart(now, cfg.FallbackHour+24)
	}
	return target.Add(cfg.StartOffset)
}

// ChooseStart picks the start instant for the next cycle. A nil or short
// series (not covering the current hour) collapses to the fallback rule.
func ChooseStart(series PriceSeries, now time.Time, cfg Config) Schedule {
	if len(series) < now.Hour()+1 {
		return Schedule{Start: ComputeFallback(now, cfg), Basis: BasisFallback}
	}
	return Schedule{Start: ComputeFromPrices(series, now, cfg), Basis: BasisPrices}
}

// hourStart returns minute 0 of the given hour counted from midnight of now's
// day in now's location. Hours past 23 roll into the following days.
func hourStart(now time.Time, hour int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, now.Location())
}
