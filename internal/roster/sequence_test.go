package roster

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequencer_OnlyLatestApplies(t *testing.T) {
	s := NewSequencer()
	first := s.Begin("10|2024-01-01")
	second := s.Begin("10|2024-01-01")
	other := s.Begin("11|2024-01-01")

	assert.False(t, s.Current(first))
	assert.True(t, s.Current(second))
	assert.True(t, s.Current(other))

	var applied []uint64
	assert.False(t, s.Apply(first, func() { applied = append(applied, first.Seq) }))
	assert.True(t, s.Apply(second, func() { applied = append(applied, second.Seq) }))
	assert.Equal(t, []uint64{2}, applied)
}

func TestSequencer_ConcurrentBegin(t *testing.T) {
	s := NewSequencer()
	var wg sync.WaitGroup
	stamps := make([]Stamp, 50)
	for i := range stamps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stamps[i] = s.Begin("k")
		}()
	}
	wg.Wait()

	current := 0
	seen := map[uint64]bool{}
	for _, st := range stamps {
		assert.False(t, seen[st.Seq], "stamps are unique")
		seen[st.Seq] = true
		if s.Current(st) {
			current++
		}
	}
	assert.Equal(t, 1, current)
}
