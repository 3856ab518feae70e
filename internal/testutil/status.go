package testutil

import "sync"

// RecordingStatus is an abus.StatusPrinter that keeps everything it is given.
type RecordingStatus struct {
	mu       sync.Mutex
	statuses []string
	lines    []string
}

func (s *RecordingStatus) SetStatus(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, line)
}

func (s *RecordingStatus) Print(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

// Lines returns the permanent lines printed so far.
func (s *RecordingStatus) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Statuses returns every status line set so far.
func (s *RecordingStatus) Statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}
