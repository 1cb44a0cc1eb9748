package render

// Sequence hands out 1-based numbers. Each render owns one, so numbering is
// per task and needs no locking.
type Sequence struct {
	n int
}

// Next returns the next number.
func (s *Sequence) Next() int {
	s.n++
	return s.n
}

// Current returns the last number handed out.
func (s *Sequence) Current() int {
	return s.n
}
