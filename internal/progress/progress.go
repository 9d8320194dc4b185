// Package progress defines the observer used to surface operation progress.
package progress

// Reporter receives best-effort progress updates. Fraction is in [0, 1] and
// never decreases within one operation; it reaches 1.0 only on completion.
type Reporter interface {
	Report(fraction float64, label string)
}

// Func adapts a function to the Reporter interface.
type Func func(fraction float64, label string)

func (f Func) Report(fraction float64, label string) {
	f(fraction, label)
}

// Discard ignores all reports.
var Discard Reporter = Func(func(float64, string) {})
