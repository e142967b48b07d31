// ABOUTME: Set of prompts rejected by the service content filter
// ABOUTME: Grows monotonically within a session, cleared only by reconnect
package session

import "sync"

// FilteredSet tracks prompt texts the service refused, with the reported
// reason. Filtered prompts are excluded from outbound updates and flagged
// in the UI.
type FilteredSet struct {
	mu      sync.RWMutex
	reasons map[string]string
}

// NewFilteredSet creates an empty filtered prompt set.
func NewFilteredSet() *FilteredSet {
	return &FilteredSet{reasons: make(map[string]string)}
}

// Add records a filtered prompt and its reason.
func (f *FilteredSet) Add(text, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons[text] = reason
}

// Has reports whether the prompt text has been filtered.
func (f *FilteredSet) Has(text string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.reasons[text]
	return ok
}

// Reason returns the filter reason for a prompt, if any.
func (f *FilteredSet) Reason(text string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	reason, ok := f.reasons[text]
	return reason, ok
}

// Len returns the number of filtered prompts.
func (f *FilteredSet) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.reasons)
}

// Clear resets the set. Called on reconnect: a fresh session re-evaluates
// every prompt.
func (f *FilteredSet) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = make(map[string]string)
}
