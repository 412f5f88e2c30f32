package streaming

import "sync"

// UtteranceState is the lifecycle of one synthesis job.
type UtteranceState string

const (
	UtteranceStreaming UtteranceState = "streaming"
	UtteranceDrained   UtteranceState = "drained"
	UtteranceMarked    UtteranceState = "marked"
	UtteranceFailed    UtteranceState = "failed"
)

// Utterance is one synthesis job bound to a connection.
type Utterance struct {
	ID           string
	ConnectionID string
	Provider     string
	Text         string

	mu     sync.Mutex
	state  UtteranceState
	cursor int
	total  int
}

// State returns the current lifecycle state.
func (u *Utterance) State() UtteranceState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Cursor is the number of frames written so far.
func (u *Utterance) Cursor() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cursor
}

// Total is the number of frames the utterance was split into, or 0 while it is
// still being synthesized.
func (u *Utterance) Total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.total
}

// Remaining is the number of frames not yet written.
func (u *Utterance) Remaining() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return max(u.total-u.cursor, 0)
}

func (u *Utterance) advance() {
	u.mu.Lock()
	u.cursor++
	u.mu.Unlock()
}

func (u *Utterance) setTotal(n int) {
	u.mu.Lock()
	u.total = n
	u.mu.Unlock()
}

func (u *Utterance) setState(s UtteranceState) {
	u.mu.Lock()
	u.state = s
	u.mu.Unlock()
}

func (u *Utterance) fail() {
	u.setState(UtteranceFailed)
}
