package service

import "time"

// WaitRefreshes blocks until queued background refreshes have finished.
func (s *Service) WaitRefreshes() {
	s.mu.RLock()
	jobs := s.jobs
	s.mu.RUnlock()
	if jobs == nil {
		return
	}
	deadline := time.Now().Add(5 * time.Second)
	for jobs.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}
