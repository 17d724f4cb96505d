package extract

import "sync"

// DriftTracker keeps a rolling success/failure window per skill. When the
// failure rate over a full window crosses the threshold, the skill is
// considered drifted and a regeneration request is recorded; the request
// is consumed on a later cycle, never inline with the observing job.
type DriftTracker struct {
	mu        sync.Mutex
	size      int
	threshold float64
	windows   map[string][]bool
	requests  map[string]struct{}
}

// NewDriftTracker builds a tracker with the given window size and failure
// threshold in (0, 1].
func NewDriftTracker(size int, threshold float64) *DriftTracker {
	if size <= 0 {
		size = 10
	}
	return &DriftTracker{
		size:      size,
		threshold: threshold,
		windows:   make(map[string][]bool),
		requests:  make(map[string]struct{}),
	}
}

// Observe records one live extraction result for a skill. Returns true the
// first time the failure rate crosses the threshold for the current window.
func (d *DriftTracker) Observe(skillID string, ok bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	window := append(d.windows[skillID], ok)
	if len(window) > d.size {
		window = window[len(window)-d.size:]
	}
	d.windows[skillID] = window

	if len(window) < d.size {
		return false
	}
	failures := 0
	for _, pass := range window {
		if !pass {
			failures++
		}
	}
	rate := float64(failures) / float64(len(window))
	if rate < d.threshold {
		return false
	}
	if _, already := d.requests[skillID]; already {
		return false
	}
	d.requests[skillID] = struct{}{}
	return true
}

// RegenerationDue reports whether a drift-triggered regeneration request
// is pending for the skill.
func (d *DriftTracker) RegenerationDue(skillID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, due := d.requests[skillID]
	return due
}

// Clear drops the pending request and window for a skill, after a
// regeneration attempt has been made (whether or not it published).
func (d *DriftTracker) Clear(skillID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.requests, skillID)
	delete(d.windows, skillID)
}
