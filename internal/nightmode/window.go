// Package nightmode classifies usage against a user's night window, a
// time-of-day range that may wrap past midnight (for example 23:00-07:00).
package nightmode

import (
	"fmt"
	"time"
)

const clockLayout = "15:04"

// Window is a [Start, End) time-of-day range as zero-padded HH:MM strings.
// Zero-padded clocks order lexicographically the same way they order in
// time, so Contains compares strings directly.
type Window struct {
	Start string
	End   string
}

// ParseWindow validates both bounds. "HH:MM:SS" values, as stored by
// TIME columns, are truncated to HH:MM.
func ParseWindow(start, end string) (Window, error) {
	s, err := normalizeClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("night window start: %w", err)
	}
	e, err := normalizeClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("night window end: %w", err)
	}
	return Window{Start: s, End: e}, nil
}

// Crosses reports whether the window wraps past midnight.
func (w Window) Crosses() bool {
	return w.Start > w.End
}

// Contains reports whether the HH:MM clock falls inside the window.
// The end bound is exclusive. A window whose bounds are equal is empty.
func (w Window) Contains(clock string) bool {
	if w.Crosses() {
		return clock >= w.Start || clock < w.End
	}
	return w.Start <= clock && clock < w.End
}

// ContainsTime classifies t after converting it to loc.
func (w Window) ContainsTime(t time.Time, loc *time.Location) bool {
	return w.Contains(ClockOf(t, loc))
}

func (w Window) String() string {
	return w.Start + "-" + w.End
}

// ClockOf renders t as HH:MM in loc. A nil loc means UTC.
func ClockOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(clockLayout)
}

func normalizeClock(v string) (string, error) {
	if len(v) == 8 && v[5] == ':' {
		v = v[:5]
	}
	if len(v) != 5 {
		return "", fmt.Errorf("%q is not HH:MM", v)
	}
	if _, err := time.Parse(clockLayout, v); err != nil {
		return "", fmt.Errorf("%q is not HH:MM", v)
	}
	return v, nil
}
