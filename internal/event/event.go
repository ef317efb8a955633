package event

import "time"

// Kind identifies the kind of worker message.
type Kind int

const (
	ScopeStarted Kind = iota + 1
	PhaseChanged
	Progress
	Notice
	FileFailed
	ScopeCompleted
	ScopeFailed
	Complete
)

var kindNames = [...]string{
	ScopeStarted:   "ScopeStarted",
	PhaseChanged:   "PhaseChanged",
	Progress:       "Progress",
	Notice:         "Notice",
	FileFailed:     "FileFailed",
	ScopeCompleted: "ScopeCompleted",
	ScopeFailed:    "ScopeFailed",
	Complete:       "Complete",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "Unknown"
}

// Message is a report flowing from a worker slot to the controller.
// A message without Text is a progress tick.
type Message struct {
	Kind      Kind
	Timestamp time.Time
	Scope     string // scope id, or relative path for path-partitioned runs
	Path      string // file concerned, if any
	Text      string
	Err       error
	Slot      int
	Iteration int
	Total     int
}

// IsTick reports whether m only carries iteration counters.
func (m Message) IsTick() bool {
	return m.Text == "" && m.Err == nil
}

// Failed reports whether m carries an error.
func (m Message) Failed() bool {
	return m.Err != nil
}

// Emitter sends messages for one slot and scope. The zero value discards.
type Emitter struct {
	ch    chan<- Message
	slot  int
	scope string
}

// NewEmitter binds ch to a slot.
func NewEmitter(ch chan<- Message, slot int) Emitter {
	return Emitter{ch: ch, slot: slot}
}

// ForScope returns a copy of e that stamps messages with scope.
func (e Emitter) ForScope(scope string) Emitter {
	e.scope = scope
	return e
}

// Slot returns the slot index messages are stamped with.
func (e Emitter) Slot() int { return e.slot }

// Emit stamps and sends m. Progress ticks are dropped when the channel is
// full; every other kind blocks until the controller takes it.
func (e Emitter) Emit(m Message) {
	if e.ch == nil {
		return
	}
	m.Timestamp = time.Now()
	m.Slot = e.slot
	if m.Scope == "" {
		m.Scope = e.scope
	}
	if m.Kind == Progress && m.IsTick() {
		select {
		case e.ch <- m:
		default:
		}
		return
	}
	e.ch <- m
}

// Tick emits a progress tick.
func (e Emitter) Tick(iteration, total int) {
	e.Emit(Message{Kind: Progress, Iteration: iteration, Total: total})
}

// Notice emits a human-readable message.
func (e Emitter) Notice(text string) {
	e.Emit(Message{Kind: Notice, Text: text})
}
