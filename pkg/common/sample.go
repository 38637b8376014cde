package common

// Sample is the pair of sites a restraint acts on at one simulation step.
type Sample struct {
	Time      float64 `json:"t"`
	Position  Vector  `json:"v"`
	Reference Vector  `json:"v0"`
}

func (s Sample) Distance() float64 {
	return s.Position.Sub(s.Reference).Norm()
}
