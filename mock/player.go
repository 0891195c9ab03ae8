package mock

import (
	"sync"
	"time"
)

// Played is a note received by Player.
type Played struct {
	Note string
	At   time.Time
}

// Player records played notes. If Clock is set, play time is recorded.
type Player struct {
	Clock interface{ Now() time.Time }
	// ErrorOn maps note names to errors returned by Play.
	ErrorOn map[string]error

	mu     sync.Mutex
	played []Played
	notify chan struct{}
}

// Play records the note.
func (p *Player) Play(note string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pl := Played{Note: note}
	if p.Clock != nil {
		pl.At = p.Clock.Now()
	}
	p.played = append(p.played, pl)
	if p.notify != nil {
		select {
		case p.notify <- struct{}{}:
		default:
		}
	}
	return p.ErrorOn[note]
}

// Played returns a copy of played notes.
func (p *Player) Played() []Played {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Played(nil), p.played...)
}

// Notes returns names of played notes.
func (p *Player) Notes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	notes := make([]string, len(p.played))
	for i := range p.played {
		notes[i] = p.played[i].Note
	}
	return notes
}

// WaitFor blocks until n notes are played or timeout passes. Returns false
// on timeout.
func (p *Player) WaitFor(n int, timeout time.Duration) bool {
	p.mu.Lock()
	if p.notify == nil {
		p.notify = make(chan struct{}, 1)
	}
	notify := p.notify
	p.mu.Unlock()

	deadline := time.After(timeout)
	for {
		p.mu.Lock()
		count := len(p.played)
		p.mu.Unlock()
		if count >= n {
			return true
		}
		select {
		case <-notify:
		case <-deadline:
			return false
		}
	}
}
