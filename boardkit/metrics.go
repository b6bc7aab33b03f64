package boardkit

import "time"

// MetricsCollector provides hooks for collecting coordination metrics
type MetricsCollector interface {
	// RecordSaveDuration records how long a save operation took
	RecordSaveDuration(duration time.Duration, success bool)

	// RecordCommandDuration records a command execution by type
	RecordCommandDuration(commandType string, duration time.Duration, success bool)

	// RecordConflictsDetected records the number of conflicts found in one pass
	RecordConflictsDetected(count int)

	// RecordConflictResolved records the resolution applied to one conflict
	RecordConflictResolved(resolution string)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordSaveDuration(duration time.Duration, success bool)  {}
func (n *NoOpMetricsCollector) RecordCommandDuration(t string, d time.Duration, ok bool) {}
func (n *NoOpMetricsCollector) RecordConflictsDetected(count int)                        {}
func (n *NoOpMetricsCollector) RecordConflictResolved(resolution string)                 {}
