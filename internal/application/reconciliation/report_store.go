package reconciliation

import "sync"

// DefaultReportHistory is how many batch reports the store retains
const DefaultReportHistory = 20

// BatchReportStore keeps the most recent batch reports in memory so
// operators can inspect the outcome of scheduler-triggered runs. History is
// bounded; restarting the process clears it.
type BatchReportStore struct {
	mu      sync.RWMutex
	reports []BatchReport
	max     int
}

// NewBatchReportStore creates a store retaining up to max reports
func NewBatchReportStore(max int) *BatchReportStore {
	if max <= 0 {
		max = DefaultReportHistory
	}
	return &BatchReportStore{max: max}
}

// Record appends a finished batch report, evicting the oldest beyond the cap
func (s *BatchReportStore) Record(report *BatchReport) {
	if report == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, *report)
	if len(s.reports) > s.max {
		s.reports = s.reports[len(s.reports)-s.max:]
	}
}

// Latest returns the most recent batch report
func (s *BatchReportStore) Latest() (*BatchReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.reports) == 0 {
		return nil, false
	}
	cp := s.reports[len(s.reports)-1]
	return &cp, true
}

// Recent returns the retained reports, most recent first
func (s *BatchReportStore) Recent() []BatchReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BatchReport, 0, len(s.reports))
	for i := len(s.reports) - 1; i >= 0; i-- {
		out = append(out, s.reports[i])
	}
	return out
}
