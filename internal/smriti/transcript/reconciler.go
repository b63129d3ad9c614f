// Package transcript merges incrementally delivered speech-recognition
// events into one stable text buffer.
//
// A Reconciler keeps two strings. confirmedBase is the text nobody will
// revise any more: whatever was in the input field when the session started
// plus every finalized segment received since. liveText is confirmedBase with
// the current interim segment attached, and is recomputed (never appended to)
// on every event. Interim-only events never touch confirmedBase, which is
// what keeps "my", "my name", "my name is" from compounding into
// "my my name my name is".
package transcript

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// ErrAlreadyListening is returned by Start when a session is active.
	ErrAlreadyListening = errors.New("transcript: already listening")

	// ErrNotListening is returned by OnEvent outside an active session.
	ErrNotListening = errors.New("transcript: not listening")

	// ErrRecognitionUnavailable is returned by Listen when the recogniser is
	// missing or permission was denied. The reconciler stays Idle.
	ErrRecognitionUnavailable = errors.New("transcript: speech recognition unavailable")
)

// State is the lifecycle state of a recognition session.
type State int

const (
	Idle State = iota
	Listening
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is a settled view of the reconciler taken after a transition.
type Snapshot struct {
	State         State
	ConfirmedBase string
	LiveText      string
	// Seq increases by one on every transition.
	Seq uint64
	// Err is the recogniser error that ended the session, if any.
	Err error
}

// Observer receives a Snapshot after every transition.
type Observer func(Snapshot)

// Reconciler is safe for concurrent use. Observers are invoked
// synchronously, after the transition is complete and the state lock has
// been released. Delivered Seq values only increase: when two transitions
// race, a snapshot that is already stale by the time it is delivered is
// dropped. Observers may call back into the Reconciler.
type Reconciler struct {
	logger *slog.Logger

	mu            sync.Mutex
	state         State
	confirmedBase string
	liveText      string
	seq           uint64
	err           error

	obsMu     sync.Mutex
	observers map[uint64]Observer
	nextObs   uint64

	delivered atomic.Uint64
}

// New returns an Idle reconciler. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		logger:    logger,
		observers: make(map[uint64]Observer),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (r *Reconciler) Subscribe(fn Observer) (unsubscribe func()) {
	r.obsMu.Lock()
	id := r.nextObs
	r.nextObs++
	r.observers[id] = fn
	r.obsMu.Unlock()

	return func() {
		r.obsMu.Lock()
		delete(r.observers, id)
		r.obsMu.Unlock()
	}
}

// Start begins a session seeded with the current stable text of the input
// field, trailing whitespace removed. Starting from Stopped re-enters
// Listening; starting while Listening is rejected.
func (r *Reconciler) Start(current string) error {
	r.mu.Lock()
	if r.state == Listening {
		r.mu.Unlock()
		return ErrAlreadyListening
	}
	r.state = Listening
	r.confirmedBase = strings.TrimRight(current, " \t\r\n")
	r.liveText = r.confirmedBase
	r.err = nil
	snap := r.advanceLocked()
	r.mu.Unlock()

	r.notify(snap)
	return nil
}

// OnEvent applies one recognition event. liveText becomes confirmedBase
// followed by the finalized segments and the interim segment. When any
// finalized segment is present confirmedBase advances to cover it, so later
// interim text attaches after it.
func (r *Reconciler) OnEvent(finals []string, interim string) error {
	r.mu.Lock()
	if r.state != Listening {
		r.mu.Unlock()
		return ErrNotListening
	}

	committed := joinSegments(append([]string{r.confirmedBase}, finals...)...)
	r.liveText = joinSegments(committed, interim)
	if hasText(finals) {
		r.confirmedBase = committed
	}
	snap := r.advanceLocked()
	r.mu.Unlock()

	r.notify(snap)
	return nil
}

// Stop ends the session. liveText keeps its last computed value.
func (r *Reconciler) Stop() {
	r.end(nil, false)
}

// OnError ends the session because the recogniser failed. liveText keeps
// its last computed value.
func (r *Reconciler) OnError(err error) {
	r.end(err, false)
}

// Cancel ends the session and discards the unconfirmed interim tail:
// liveText reverts to confirmedBase.
func (r *Reconciler) Cancel() {
	r.end(nil, true)
}

func (r *Reconciler) end(err error, dropInterim bool) {
	r.mu.Lock()
	if r.state != Listening {
		r.mu.Unlock()
		return
	}
	r.state = Stopped
	r.err = err
	if dropInterim {
		r.liveText = r.confirmedBase
	}
	snap := r.advanceLocked()
	r.mu.Unlock()

	r.notify(snap)
}

// LiveText returns the current text buffer.
func (r *Reconciler) LiveText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveText
}

// State returns the current lifecycle state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns a consistent copy of the reconciler state.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) advanceLocked() Snapshot {
	r.seq++
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() Snapshot {
	return Snapshot{
		State:         r.state,
		ConfirmedBase: r.confirmedBase,
		LiveText:      r.liveText,
		Seq:           r.seq,
		Err:           r.err,
	}
}

func (r *Reconciler) notify(snap Snapshot) {
	for {
		last := r.delivered.Load()
		if snap.Seq <= last {
			return
		}
		if r.delivered.CompareAndSwap(last, snap.Seq) {
			break
		}
	}

	r.obsMu.Lock()
	ids := make([]uint64, 0, len(r.observers))
	for id := range r.observers {
		ids = append(ids, id)
	}
	fns := make([]Observer, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, r.observers[id])
	}
	r.obsMu.Unlock()

	for _, fn := range fns {
		r.deliver(fn, snap)
	}
}

func (r *Reconciler) deliver(fn Observer, snap Snapshot) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("transcript observer panicked", "panic", p, "seq", snap.Seq)
		}
	}()
	fn(snap)
}

// joinSegments trims each piece and joins the non-empty ones with a single
// space.
func joinSegments(pieces ...string) string {
	var b strings.Builder
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return b.String()
}

func hasText(segments []string) bool {
	for _, s := range segments {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}
