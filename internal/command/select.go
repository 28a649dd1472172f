package command

import (
	"math/rand"
	"time"
)

// Selector picks the reply that drives the next round. Selection among
// qualifying candidates is uniform so that no replier is favored.
type Selector struct {
	Rand *rand.Rand
}

// NewSelector returns a selector seeded from the clock.
func NewSelector() *Selector {
	return &Selector{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Select returns a random qualifying candidate replying directly to anchor.
// The boolean is false when no candidate qualifies yet.
func (s *Selector) Select(batch []Candidate, anchor string) (Candidate, bool) {
	return s.pick(Qualifying(batch, anchor))
}

// SelectAny returns a random candidate with at least one action, regardless of
// what it replies to.
func (s *Selector) SelectAny(batch []Candidate) (Candidate, bool) {
	var qualifying []Candidate
	for _, c := range batch {
		if c.Qualifies() {
			qualifying = append(qualifying, c)
		}
	}
	return s.pick(qualifying)
}

// Qualifying filters batch to candidates whose parent is exactly anchor and
// which carry at least one action.
func Qualifying(batch []Candidate, anchor string) []Candidate {
	var out []Candidate
	for _, c := range batch {
		if c.ParentID == "" || c.ParentID != anchor {
			continue
		}
		if !c.Qualifies() {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Selector) pick(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	rng := s.Rand
	if rng == nil {
		return candidates[rand.Intn(len(candidates))], true
	}
	return candidates[rng.Intn(len(candidates))], true
}
