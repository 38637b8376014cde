package common

// PotentialPointData is the output of a restraint evaluated at one point.
// Energy is nil when the restraint does not compute it.
type PotentialPointData struct {
	Force  Vector   `json:"force"`
	Energy *float64 `json:"energy,omitempty"`
}

func (p PotentialPointData) HasEnergy() bool {
	return p.Energy != nil
}
