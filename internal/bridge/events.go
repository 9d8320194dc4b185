package bridge

import "github.com/sweepbox/sweepbox/internal/scan"

// Event is a message from a running engine operation to the presentation
// layer. Exactly one terminal event (ScanComplete, ScanError, DeleteComplete)
// ends each operation; DeleteError is terminal only when the whole run
// stopped, otherwise it reports a single skipped sender.
type Event interface {
	isEvent()
}

// ScanProgress reports scan advancement in [0, 1] with a display label.
type ScanProgress struct {
	Fraction float64
	Label    string
}

// ScanComplete carries the final tallies. TotalMessages is the full folder
// count even when the scan was depth-limited to a newer subset.
type ScanComplete struct {
	Senders       []scan.SenderTally
	TotalMessages int
}

// ScanError ends a scan that could not produce tallies.
type ScanError struct {
	Message string
}

// DeleteProgress reports purge advancement in [0, 1] with a display label.
type DeleteProgress struct {
	Fraction float64
	Label    string
}

// DeleteComplete carries the senders whose purge was confirmed.
type DeleteComplete struct {
	Removed      []string
	TotalRemoved int
}

// DeleteError reports a failed sender mid-run, or the reason the run stopped.
type DeleteError struct {
	Message string
}

func (ScanProgress) isEvent()   {}
func (ScanComplete) isEvent()   {}
func (ScanError) isEvent()      {}
func (DeleteProgress) isEvent() {}
func (DeleteComplete) isEvent() {}
func (DeleteError) isEvent()    {}
