package xr

import "go.uber.org/zap"

type releaseEntry struct {
	name    string
	release func() error
}

// releaseStack records acquired resources so they are released in exact reverse order of acquisition.
type releaseStack struct {
	entries []releaseEntry
	logger  *zap.Logger
}

// push records a resource. release is called at most once, by unwind.
func (s *releaseStack) push(name string, release func() error) {
	s.entries = append(s.entries, releaseEntry{name: name, release: release})
}

// pushFunc records a resource whose release cannot fail.
func (s *releaseStack) pushFunc(name string, release func()) {
	s.push(name, func() error {
		release()
		return nil
	})
}

// unwind releases every recorded resource, newest first, and empties the stack.
// Release failures are logged and do not stop the unwind.
func (s *releaseStack) unwind() {
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if err := e.release(); err != nil {
			s.logger.Warn("failed to release resource", zap.String("resource", e.name), zap.Error(err))
			continue
		}
		s.logger.Debug("released resource", zap.String("resource", e.name))
	}
	s.entries = nil
}
