package melody

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
)

const (
	// DefaultOrder is the longest state of the Markov model.
	DefaultOrder = 3
	// DefaultLength is the number of generated notes.
	DefaultLength = 16
)

// Markov continues note sequences with a variable order Markov chain. The
// model is built from the input sequence itself, so only notes of the
// input are generated. It's safe for concurrent use.
type Markov struct {
	order  int
	length int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewMarkov creates a generator. Non-positive order and length are replaced
// with defaults.
func NewMarkov(order, length int, seed int64) *Markov {
	if order <= 0 {
		order = DefaultOrder
	}
	if length <= 0 {
		length = DefaultLength
	}
	return &Markov{
		order:  order,
		length: length,
		rnd:    rand.New(rand.NewSource(seed)),
	}
}

// transitions counts next notes per state.
type transitions map[string]map[string]int

func stateKey(notes []string) string {
	return strings.Join(notes, " ")
}

// build counts transitions of every order up to max.
func build(notes []string, max int) transitions {
	t := make(transitions)
	for order := 1; order <= max; order++ {
		for i := 0; i+order < len(notes); i++ {
			k := stateKey(notes[i : i+order])
			if t[k] == nil {
				t[k] = make(map[string]int)
			}
			t[k][notes[i+order]]++
		}
	}
	return t
}

// Continue returns the continuation of notes. Unknown states fall back to
// shorter ones. If no state is known, a random input note is used.
func (m *Markov) Continue(notes []string) []string {
	if len(notes) == 0 {
		return nil
	}
	max := m.order
	if max > len(notes)-1 {
		max = len(notes) - 1
	}
	if max < 1 {
		max = 1
	}
	t := build(notes, max)

	m.mu.Lock()
	defer m.mu.Unlock()
	state := append([]string(nil), notes[len(notes)-max:]...)
	result := make([]string, 0, m.length)
	for len(result) < m.length {
		next, ok := "", false
		for order := len(state); order > 0 && !ok; order-- {
			next, ok = m.choose(t[stateKey(state[len(state)-order:])])
		}
		if !ok {
			next = notes[m.rnd.Intn(len(notes))]
		}
		result = append(result, next)
		state = append(state, next)
		if len(state) > max {
			state = state[len(state)-max:]
		}
	}
	return result
}

// choose picks a next note weighted by its count.
func (m *Markov) choose(next map[string]int) (string, bool) {
	if len(next) == 0 {
		return "", false
	}
	keys := make([]string, 0, len(next))
	var total int
	for k, v := range next {
		keys = append(keys, k)
		total += v
	}
	sort.Strings(keys)
	r := m.rnd.Intn(total)
	for _, k := range keys {
		r -= next[k]
		if r < 0 {
			return k, true
		}
	}
	return keys[len(keys)-1], true
}
