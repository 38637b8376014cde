package simulation

import (
	"github.com/peter-kozarec/ensemble/pkg/utility/math"
)

type distanceSnapshot struct {
	t        float64
	distance float64
	force    float64
}

// Audit records the trajectory of one replica as seen by its restraint.
type Audit struct {
	minSnapshotInterval float64

	snapshots []distanceSnapshot

	steps             int64
	activeSteps       int64
	reductionFailures int
	forceSum          float64
	maxForce          float64
	startTime         float64
	endTime           float64
}

func NewAudit(minSnapshotInterval float64) *Audit {
	return &Audit{
		minSnapshotInterval: minSnapshotInterval,
	}
}

func (a *Audit) AddStep(t, distance, force float64, active bool) {
	if a.steps == 0 {
		a.startTime = t
	}
	a.steps++
	a.endTime = t

	if active {
		a.activeSteps++
		a.forceSum += force
		if force > a.maxForce {
			a.maxForce = force
		}
	}

	if len(a.snapshots) == 0 ||
		t-a.snapshots[len(a.snapshots)-1].t >= a.minSnapshotInterval {
		a.snapshots = append(a.snapshots, distanceSnapshot{t: t, distance: distance, force: force})
	}
}

func (a *Audit) AddReductionFailure() {
	a.reductionFailures++
}

func (a *Audit) Snapshots() int {
	return len(a.snapshots)
}

func (a *Audit) GenerateReport() Report {
	report := Report{
		Steps:             a.steps,
		ActiveSteps:       a.activeSteps,
		ReductionFailures: a.reductionFailures,
		StartTime:         a.startTime,
		EndTime:           a.endTime,
		MaxForce:          a.maxForce,
	}

	if a.activeSteps > 0 {
		report.MeanForce = a.forceSum / float64(a.activeSteps)
	}

	distances := make([]float64, len(a.snapshots))
	for i, snapshot := range a.snapshots {
		distances[i] = snapshot.distance
	}
	report.MeanDistance = math.Mean(distances)
	report.DistanceDeviation = math.StandardDeviation(distances, report.MeanDistance)
	report.MaxDistance = math.Max(distances)

	return report
}
