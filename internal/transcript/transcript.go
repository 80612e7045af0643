package transcript

import (
	"strings"
	"sync"
)

// Kind tags a transcription event as provisional or settled.
type Kind string

const (
	Partial Kind = "partial"
	Final   Kind = "final"
)

// Event is one partial or final update from the transcription service. The
// utterance it applies to is implicit: always the current slot.
type Event struct {
	Kind Kind
	Text string
}

// Slot holds the latest known text for one utterance. Once Finalized is set
// the text never changes again.
type Slot struct {
	Text      string
	Finalized bool
}

// Transcript merges partial/final events into an append-only, index-addressed
// sequence of utterances suitable for live display.
//
// Partials overwrite the current slot; a final fixes the current slot and
// advances the index. The index never decreases and finalized slots are
// immutable, so a later partial for a new utterance can never clobber settled
// text.
//
// Safe for concurrent use: the session event pump writes while display and
// control surfaces read.
type Transcript struct {
	mu       sync.Mutex
	slots    []Slot
	current  int
	onUpdate func(slots []Slot)
}

func New() *Transcript {
	return &Transcript{}
}

// OnUpdate registers a subscriber invoked after every applied event with a
// snapshot of the slots. Passing nil removes the subscriber.
func (t *Transcript) OnUpdate(fn func(slots []Slot)) {
	t.mu.Lock()
	t.onUpdate = fn
	t.mu.Unlock()
}

// Apply merges one event into the transcript.
func (t *Transcript) Apply(ev Event) {
	t.mu.Lock()

	for len(t.slots) <= t.current {
		t.slots = append(t.slots, Slot{})
	}

	slot := &t.slots[t.current]
	if slot.Finalized {
		// Should not happen: the index advances past every finalized slot.
		// Skip rather than violate immutability.
		t.mu.Unlock()
		return
	}

	slot.Text = ev.Text
	if ev.Kind == Final {
		slot.Finalized = true
		t.current++
	}

	fn := t.onUpdate
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// Current returns the index of the utterance currently being spoken.
func (t *Transcript) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Slots returns a snapshot copy of all utterance slots.
func (t *Transcript) Slots() []Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Transcript) snapshotLocked() []Slot {
	out := make([]Slot, len(t.slots))
	copy(out, t.slots)
	return out
}

// Finals returns the text of every finalized utterance in order.
func (t *Transcript) Finals() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, s := range t.slots {
		if s.Finalized {
			out = append(out, s.Text)
		}
	}
	return out
}

// Words returns the whitespace-delimited words across every slot in order.
func (t *Transcript) Words() []string {
	return strings.Fields(t.Text())
}

// Text joins every non-empty slot, finalized or not, into one display string.
func (t *Transcript) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var parts []string
	for _, s := range t.slots {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, "\n")
}
