package roster

import "sync"

// Stamp tags one pass for a key such as "course|date" or a client selection.
type Stamp struct {
	Key string
	Seq uint64
}

// Sequencer hands out increasing stamps per key so that a slow pass finishing
// after a newer one started can be discarded.
type Sequencer struct {
	mu     sync.Mutex
	latest map[string]uint64
}

func NewSequencer() *Sequencer {
	return &Sequencer{latest: make(map[string]uint64)}
}

// Begin issues the next stamp for key.
func (s *Sequencer) Begin(key string) Stamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[key]++
	return Stamp{Key: key, Seq: s.latest[key]}
}

// Current reports whether st is still the latest stamp for its key.
func (s *Sequencer) Current(st Stamp) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[st.Key] == st.Seq
}

// Apply runs fn only if st is still current, holding the sequencer lock so no
// newer stamp can be issued in between. It reports whether fn ran.
func (s *Sequencer) Apply(st Stamp, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest[st.Key] != st.Seq {
		return false
	}
	fn()
	return true
}
