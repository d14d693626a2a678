// Package ohlc resamples a session's realized tick prices into fixed-width,
// time-aligned open/high/low/close candles.
package ohlc

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/session-engine/internal/model"
)

// Aggregate assigns prices[i] the timestamp start + i*unit, groups them into
// buckets of width aligned to the Unix epoch and returns one candle per
// non-empty bucket in chronological order. Candle timestamps are unix
// seconds, so width must be a whole number of seconds.
func Aggregate(start time.Time, unit time.Duration, prices []decimal.Decimal, width time.Duration) ([]model.Candle, error) {
	if width <= 0 || unit <= 0 || width%time.Second != 0 {
		return nil, model.ErrInvalidBucket
	}
	candles := make([]model.Candle, 0, len(prices))
	var cur *model.Candle
	var curBucket int64

	for i, p := range prices {
		ts := start.Add(time.Duration(i) * unit)
		bucket := floorTo(ts.UnixNano(), int64(width))

		if cur == nil || bucket != curBucket {
			candles = append(candles, model.Candle{
				Timestamp: bucket / int64(time.Second),
				Open:      p,
				High:      p,
				Low:       p,
				Close:     p,
			})
			cur = &candles[len(candles)-1]
			curBucket = bucket
			continue
		}
		if p.GreaterThan(cur.High) {
			cur.High = p
		}
		if p.LessThan(cur.Low) {
			cur.Low = p
		}
		cur.Close = p
	}
	return candles, nil
}

// floorTo rounds v down to a multiple of step, also for negative v.
func floorTo(v, step int64) int64 {
	r := v % step
	if r < 0 {
		r += step
	}
	return v - r
}

// aliasRegex matches resample-style frequencies: 5S, 10s, 1min, 2T, 1H, 1D.
var aliasRegex = regexp.MustCompile(`^(\d*)\s*(S|s|sec|T|min|H|h|D|d)$`)

var aliasUnits = map[string]time.Duration{
	"S":   time.Second,
	"s":   time.Second,
	"sec": time.Second,
	"T":   time.Minute,
	"min": time.Minute,
	"H":   time.Hour,
	"h":   time.Hour,
	"D":   24 * time.Hour,
	"d":   24 * time.Hour,
}

// ParseWidth parses a bucket width given as a Go duration ("5s", "1m30s") or
// a resample alias ("5S", "1min", "T", "1H"). The width must be a positive
// whole number of seconds.
func ParseWidth(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", model.ErrInvalidBucket)
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 || d%time.Second != 0 {
			return 0, fmt.Errorf("%w: %s", model.ErrInvalidBucket, raw)
		}
		return d, nil
	}
	m := aliasRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %s", model.ErrInvalidBucket, raw)
	}
	n := 1
	if m[1] != "" {
		v, err := strconv.Atoi(m[1])
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("%w: %s", model.ErrInvalidBucket, raw)
		}
		n = v
	}
	unit := aliasUnits[m[2]]
	if int64(n) > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("%w: %s overflows", model.ErrInvalidBucket, raw)
	}
	return time.Duration(n) * unit, nil
}
