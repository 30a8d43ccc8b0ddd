package pkg

import (
	"fmt"
	"time"
)

// Latency accumulates per-operation timing and volume for one operation
// kind. It is not internally synchronized; owners guard it with whatever
// lock already serializes the operation being measured.
type Latency struct {
	Count uint64        // Completed operations
	Bytes uint64        // Total bytes transferred
	Total time.Duration // Sum of operation durations
	Min   time.Duration // Shortest observed operation
	Max   time.Duration // Longest observed operation
}

// Observe records one completed operation of n bytes taking d.
func (l *Latency) Observe(d time.Duration, n int) {
	if l.Count == 0 || d < l.Min {
		l.Min = d
	}
	if d > l.Max {
		l.Max = d
	}
	l.Count++
	l.Bytes += uint64(n)
	l.Total += d
}

// String returns a one-line summary suitable for diagnostic output.
func (l *Latency) String() string {
	if l.Count == 0 {
		return "0 ops"
	}
	return fmt.Sprintf("%d ops, %d B, total %v, min %v, max %v",
		l.Count, l.Bytes, l.Total, l.Min, l.Max)
}
