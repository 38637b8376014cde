package utility

import (
	"sync"

	"github.com/google/uuid"
)

// RunID identifies one process taking part in an ensemble run. Every event
// and coordinator message emitted by the process carries it.
type RunID = uuid.UUID

var (
	runID     RunID
	runIDOnce sync.Once
	runIDMu   sync.RWMutex
)

func GetRunID() RunID {
	runIDOnce.Do(func() {
		runIDMu.Lock()
		defer runIDMu.Unlock()
		runID = uuid.Must(uuid.NewV7())
	})

	runIDMu.RLock()
	defer runIDMu.RUnlock()
	return runID
}

func ResetRunID() RunID {
	GetRunID()

	runIDMu.Lock()
	defer runIDMu.Unlock()

	runID = uuid.Must(uuid.NewV7())
	return runID
}

// NewMemberID returns a fresh identity for an ensemble member connection.
func NewMemberID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
