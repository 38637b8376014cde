package simulation

type Configuration struct {
	// SnapshotInterval is the minimum simulation time between two audited
	// distance snapshots.
	SnapshotInterval float64
	// StopOnReductionFailure turns a failed window rotation into a fatal
	// error instead of retrying it on the next step.
	StopOnReductionFailure bool
}
