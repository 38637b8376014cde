package utility

import (
	"sync"
	"testing"
	"time"
)

func TestUtility_NextEventIDUniqueness(t *testing.T) {
	const n = 5000
	ids := make(map[EventID]bool, n)

	for i := 0; i < n; i++ {
		id := NextEventID()
		if ids[id] {
			t.Fatalf("Duplicate EventID: %d", id)
		}
		ids[id] = true
	}
}

func TestUtility_NextEventIDConcurrent(t *testing.T) {
	const goroutines = 50
	const idsPerGoroutine = 100

	ids := make(chan EventID, goroutines*idsPerGoroutine)
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < idsPerGoroutine; j++ {
				ids <- NextEventID()
			}
		}()
	}

	wg.Wait()
	close(ids)

	seen := make(map[EventID]bool, goroutines*idsPerGoroutine)
	for id := range ids {
		if seen[id] {
			t.Fatalf("Duplicate EventID: %d", id)
		}
		seen[id] = true
	}
}

func TestUtility_ParseEventID(t *testing.T) {
	before := time.Now().Add(-time.Second)
	id := NextEventID()

	ts, machine, _ := ParseEventID(id)

	if machine != machineID {
		t.Errorf("Expected machine %d, got %d", machineID, machine)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Errorf("Timestamp %v out of range", ts)
	}
}
