package metrics

import (
	"time"
)

// MeasureDBQuery times a ledger operation:
//
//	defer metrics.MeasureDBQuery(m, "save_attempt", "postgres")()
func MeasureDBQuery(m *Metrics, operation, backend string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.ObserveDBQuery(operation, backend, time.Since(start))
	}
}
