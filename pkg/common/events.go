package common

import (
	"time"

	"github.com/peter-kozarec/ensemble/pkg/utility"
)

type WindowRotated struct {
	Source    string          `json:"src,omitempty"`
	RunID     utility.RunID   `json:"rid,omitempty"`
	EventID   utility.EventID `json:"eid,omitempty"`
	TimeStamp time.Time       `json:"ts"`
	Restraint string          `json:"restraint"`
	Rotation  uint64          `json:"rotation"`
	SimTime   float64         `json:"sim_time"`
	NextTime  float64         `json:"next_time"`
	Windows   [][]float64     `json:"windows"`
	Histogram []float64       `json:"histogram"`
}

type ReductionFailed struct {
	Source    string          `json:"src,omitempty"`
	RunID     utility.RunID   `json:"rid,omitempty"`
	EventID   utility.EventID `json:"eid,omitempty"`
	TimeStamp time.Time       `json:"ts"`
	Restraint string          `json:"restraint"`
	Rotation  uint64          `json:"rotation"`
	SimTime   float64         `json:"sim_time"`
	Err       error           `json:"-"`
	Reason    string          `json:"reason"`
}
