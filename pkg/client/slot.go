package client

import "sync"

// Slot holds at most one live connection. The lock is held only for a single
// read or replace, never while the connection is in use.
type Slot struct {
	// replaceMu serializes Replace so overlapping calls cannot both see an
	// empty slot. Current never takes it.
	replaceMu sync.Mutex

	mu   sync.Mutex
	conn Conn
}

// Current returns the live connection, or nil when the slot is empty.
func (s *Slot) Current() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Replace tears down the previous connection before publishing conn.
// Passing nil empties the slot. The close error of the previous connection is returned.
func (s *Slot) Replace(conn Conn) error {
	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()

	s.mu.Lock()
	previous := s.conn
	s.conn = nil
	s.mu.Unlock()

	var closeErr error
	if previous != nil {
		closeErr = previous.Close()
	}

	if conn != nil {
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
	}

	return closeErr
}

// Clear empties the slot, closing the live connection if any.
func (s *Slot) Clear() error {
	return s.Replace(nil)
}
