package mapper

import "github.com/peter-kozarec/ensemble/pkg/common"

// BinarySample is the on-disk trajectory record: simulation time followed by
// the restrained site and its reference site, all little-endian float64.
type BinarySample struct {
	Time float64
	X    float64
	Y    float64
	Z    float64
	X0   float64
	Y0   float64
	Z0   float64
}

func (binarySample BinarySample) ToSample(sample *common.Sample) {
	sample.Time = binarySample.Time
	sample.Position = common.Vector{binarySample.X, binarySample.Y, binarySample.Z}
	sample.Reference = common.Vector{binarySample.X0, binarySample.Y0, binarySample.Z0}
}

func FromSample(sample common.Sample) BinarySample {
	return BinarySample{
		Time: sample.Time,
		X:    sample.Position[0],
		Y:    sample.Position[1],
		Z:    sample.Position[2],
		X0:   sample.Reference[0],
		Y0:   sample.Reference[1],
		Z0:   sample.Reference[2],
	}
}
