package callctl

import (
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sebas/sipvoice/internal/rtpmedia"
	"github.com/sebas/sipvoice/internal/sipdialog"
	"github.com/sebas/sipvoice/internal/wavmedia"
)

// State is the orchestrator's lifecycle state (spec.md §4.3).
type State int

const (
	StateIdle State = iota
	StateDialing
	StateAuthenticating
	StateEstablished
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDialing:
		return "dialing"
	case StateAuthenticating:
		return "authenticating"
	case StateEstablished:
		return "established"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// Config holds everything the orchestrator needs to place and run one
// call; it is loaded by internal/sipconfig and adapted into this shape at
// startup.
type Config struct {
	CallerNumber string
	LocalIP      string
	LocalSIPPort int

	ServerHost string
	ServerPort int

	AuthUser     string
	AuthPassword string

	LocalRTPPort     int
	SendPortRangeMin int
	SendPortRangeMax int

	OutputWav       string
	MaxCallDuration time.Duration
}

// Orchestrator is the call state machine (spec.md §4.3): it wires the SIP
// dialog, RTP receiver/sender, and the audio source together, and is the
// only mutator of its own state.
type Orchestrator struct {
	cfg   Config
	ports *rtpmedia.PortAllocator

	mu       sync.Mutex
	state    State
	session  *sipdialog.Session
	receiver *rtpmedia.Receiver
	sender   *rtpmedia.Sender
	observer rtpmedia.Observer

	durationTimer *time.Timer
	workers       *errgroup.Group

	events chan CallEvent
}

// NewOrchestrator constructs an orchestrator in Idle, ready for Call.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		ports:  rtpmedia.NewPortAllocator(cfg.SendPortRangeMin, cfg.SendPortRangeMax),
		state:  StateIdle,
		events: make(chan CallEvent, 16),
	}
}

// Events returns the channel the control surface and logger consume
// lifecycle transitions from.
func (o *Orchestrator) Events() <-chan CallEvent { return o.events }

func (o *Orchestrator) emit(kind EventKind, reason string) {
	select {
	case o.events <- CallEvent{Kind: kind, Reason: reason, At: time.Now()}:
	default:
		slog.Warn("[CallCtl] Event channel full, dropping event", "kind", kind)
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SetRTPObserver installs the control surface's fan-out callback. The
// callback is kept: it is applied to the active call's receiver at once,
// and to the receiver of every call that Call establishes afterwards.
func (o *Orchestrator) SetRTPObserver(fn rtpmedia.Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observer = fn
	if o.receiver != nil {
		o.receiver.SetObserver(fn)
	}
}

// Stats reports the current receiver's counters, or a zero value if no
// call is established.
func (o *Orchestrator) Stats() rtpmedia.ReceiverStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.receiver == nil {
		return rtpmedia.ReceiverStats{}
	}
	return o.receiver.Stats()
}

// Call runs the SIP worker (blocking INVITE transaction) and, on success,
// starts the RTP receive worker and arms the duration cap. It implements
// spec.md §4.3's Idle→Dialing→Authenticating?→Established path; the
// Authenticating branch is internal to sipdialog.Session.Invite, which
// performs at most one reauthenticated retry itself.
func (o *Orchestrator) Call(callee string) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return ErrCallAlreadyActive
	}
	o.state = StateDialing
	o.mu.Unlock()
	o.emit(EventDialing, "")

	session, err := sipdialog.NewSession(
		o.cfg.CallerNumber, o.cfg.LocalIP, o.cfg.LocalSIPPort,
		o.cfg.ServerHost, o.cfg.ServerPort,
		callee, o.cfg.AuthUser, o.cfg.AuthPassword,
		o.cfg.LocalRTPPort,
	)
	if err != nil {
		o.fail(err)
		return err
	}

	session.OnProgress = func(kind sipdialog.ProgressKind) {
		switch kind {
		case sipdialog.ProgressRinging:
			o.emit(EventRinging, "")
		case sipdialog.ProgressAuthenticating:
			o.mu.Lock()
			o.state = StateAuthenticating
			o.mu.Unlock()
		}
	}

	if err := session.Invite(); err != nil {
		session.Close()
		o.fail(err)
		return err
	}

	receiver, err := rtpmedia.NewReceiver(o.cfg.LocalRTPPort, o.cfg.OutputWav, nil)
	if err != nil {
		session.Close()
		o.fail(err)
		return err
	}
	var workers errgroup.Group
	workers.Go(func() error {
		receiver.Run()
		return nil
	})

	sendPort, err := o.ports.Allocate()
	if err != nil {
		receiver.Stop()
		session.Close()
		o.fail(err)
		return err
	}
	ssrcSource := uuid.New()
	ssrc := binary.BigEndian.Uint32(ssrcSource[:4])
	sender, err := rtpmedia.NewSender(sendPort, session.RemoteRTPHost, session.RemoteRTPPort, ssrc)
	if err != nil {
		o.ports.Release()
		receiver.Stop()
		session.Close()
		o.fail(err)
		return err
	}

	o.mu.Lock()
	receiver.SetObserver(o.observer)
	o.session = session
	o.receiver = receiver
	o.sender = sender
	o.workers = &workers
	o.state = StateEstablished
	o.durationTimer = time.AfterFunc(o.cfg.MaxCallDuration, func() { _ = o.Hangup() })
	o.mu.Unlock()

	o.emit(EventEstablished, "")
	return nil
}

// PlayWav feeds path into the RTP sender for the active call (spec.md
// §4.2.2, driven by the control surface's PLAY_WAV command).
func (o *Orchestrator) PlayWav(path string) error {
	o.mu.Lock()
	sender := o.sender
	state := o.state
	workers := o.workers
	o.mu.Unlock()

	if state != StateEstablished || sender == nil || workers == nil {
		return ErrNoActiveCall
	}

	src, err := wavmedia.OpenSendSource(path)
	if err != nil {
		return err
	}

	// Tracked in the same errgroup as the RTP receive worker so Hangup's
	// workers.Wait() actually joins an in-flight PLAY_WAV stream before
	// BYE is sent, instead of relying on sender.Stop() unblocking it first.
	workers.Go(func() error {
		defer src.Close()
		if err := sender.Stream(src); err != nil {
			slog.Warn("[CallCtl] Sender stream ended with error", "error", err)
		}
		return nil
	})
	return nil
}

// Hangup tears the call down: stops the receiver (patching its WAV),
// sends BYE, releases resources and returns to Idle (spec.md §4.3
// Terminating). Ordering matches spec.md §5: the receiver is stopped
// before BYE is sent, so the output file is valid regardless of peer
// behavior after BYE.
func (o *Orchestrator) Hangup() error {
	o.mu.Lock()
	if o.state != StateEstablished {
		o.mu.Unlock()
		return ErrNoActiveCall
	}
	o.state = StateTerminating
	session := o.session
	receiver := o.receiver
	sender := o.sender
	workers := o.workers
	if o.durationTimer != nil {
		o.durationTimer.Stop()
	}
	o.mu.Unlock()

	o.emit(EventTerminating, "")

	if sender != nil {
		_ = sender.Stop()
		o.ports.Release()
	}
	if receiver != nil {
		if err := receiver.Stop(); err != nil {
			slog.Warn("[CallCtl] Receiver stop failed", "error", err)
		}
	}
	if workers != nil {
		_ = workers.Wait()
	}
	if session != nil {
		if err := session.Bye(); err != nil {
			slog.Warn("[CallCtl] BYE failed", "error", err)
		}
		_ = session.Close()
	}

	o.mu.Lock()
	o.session = nil
	o.receiver = nil
	o.sender = nil
	o.workers = nil
	o.state = StateIdle
	o.mu.Unlock()

	o.emit(EventIdle, "")
	return nil
}

func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	o.state = StateIdle
	o.mu.Unlock()
	o.emit(EventFailed, err.Error())
}
