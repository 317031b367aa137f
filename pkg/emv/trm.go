package emv

// ATC returns the application transaction counter.
func (s *Session) ATC() (int, error) {
	n, err := s.getUint(TagATC)
	return int(n), s.done(err)
}

// LastOnlineATC returns the ATC of the last transaction that went online.
func (s *Session) LastOnlineATC() (int, error) {
	n, err := s.getUint(TagLastOnlineATC)
	return int(n), s.done(err)
}
