package control

import (
	"sync/atomic"
	"time"

	"github.com/opentrickler/trickler-core/charge"
	"github.com/opentrickler/trickler-core/hal"
	"github.com/opentrickler/trickler-core/model"
	"github.com/opentrickler/trickler-core/tuner"
)

// InputPusher is the write side of the input queue the Machine polls;
// Control uses it to translate an external abort request into the same
// event a physical reset press produces.
type InputPusher interface {
	Push(hal.InputEvent)
}

// renderPollInterval is the Render task's polling cadence -- it is a
// read-only view, not event-driven.
const renderPollInterval = 100 * time.Millisecond

// Request is one message the Network task (or any external caller)
// submits to the Control task. Network never mutates control state
// directly -- it only enqueues requests here.
type Request struct {
	StartDrop   *float64 // target mass, nil if not a start-drop request
	Abort       bool
	SelectIndex *int

	StartTuning  bool // begins a tuning session for the current profile
	CancelTuning bool
	ApplyTuning  bool // writes the session's recommended gains into the selected profile
}

// Snapshot is the read-only view the Render task polls; Control publishes
// it after every phase transition. Render never mutates control state.
type Snapshot struct {
	Phase        model.Phase
	ProfileIndex int
	LastDrop     model.Telemetry
	TunerPhase   model.TunerPhase
}

// Tasks bundles the four long-lived tasks around a single Charge State
// Machine and motor queue.
type Tasks struct {
	Machine  *charge.Machine
	Motor    *MotorQueue
	Profiles [model.MaxProfiles]model.Profile
	Session  *tuner.Session

	// AbortInput, when set, receives a reset-press event for every Abort
	// request so a drop in progress stops exactly as if the physical
	// button had been pressed.
	AbortInput InputPusher

	requests chan Request
	snapshot atomic.Value // Snapshot
	done     chan struct{}
}

func NewTasks(m *charge.Machine, motor *MotorQueue, profiles [model.MaxProfiles]model.Profile, session *tuner.Session) *Tasks {
	t := &Tasks{
		Machine:  m,
		Motor:    motor,
		Profiles: profiles,
		Session:  session,
		requests: make(chan Request, 4),
		done:     make(chan struct{}),
	}
	t.snapshot.Store(Snapshot{})
	return t
}

// Submit is the Network task's only interaction with Control: it queues
// a request and returns immediately.
func (t *Tasks) Submit(r Request) { t.requests <- r }

// Snapshot is the Render task's only interaction with Control: a value
// copy, never a reference into live control state.
func (t *Tasks) Snapshot() Snapshot { return t.snapshot.Load().(Snapshot) }

func (t *Tasks) Stop() { close(t.done) }

// Done exposes the shutdown channel so the Motor task (owned outside
// Tasks, as its own higher-priority goroutine) can stop alongside
// Control and Render.
func (t *Tasks) Done() <-chan struct{} { return t.done }

func (t *Tasks) tunerPhase() model.TunerPhase {
	if t.Session == nil {
		return model.TunerIdle
	}
	return t.Session.State()
}

// RunControlTask is the Control task's body: block on the request queue
// (its one blocking point besides the ones inside Machine.Run itself),
// run one charge cycle per start-drop request, and publish a snapshot
// after every transition.
func (t *Tasks) RunControlTask() {
	profileIndex := 0
	for {
		select {
		case <-t.done:
			return
		case req := <-t.requests:
			switch {
			case req.SelectIndex != nil:
				if i := *req.SelectIndex; i >= 0 && i < len(t.Profiles) {
					profileIndex = i
					t.Machine.Profile = t.Profiles[profileIndex]
					t.Machine.ProfileIndex = profileIndex
				}
			case req.StartDrop != nil:
				// Machine.Tuner (the same *tuner.Session as t.Session,
				// wired at construction) already records telemetry
				// internally during dispense when a session is active.
				phase := t.Machine.Run(*req.StartDrop)
				t.snapshot.Store(Snapshot{
					Phase:        phase,
					ProfileIndex: profileIndex,
					TunerPhase:   t.tunerPhase(),
				})
			case req.StartTuning:
				if t.Session != nil {
					t.Session.Start(profileIndex, t.Machine.Config.TunerTargets, t.Machine.Config.CoarseStop)
				}
			case req.CancelTuning:
				if t.Session != nil {
					t.Session.Cancel()
				}
			case req.ApplyTuning:
				if t.Session != nil && profileIndex >= 0 && profileIndex < len(t.Profiles) {
					t.Session.Apply(&t.Profiles[profileIndex])
					t.Machine.Profile = t.Profiles[profileIndex]
				}
			case req.Abort:
				if t.AbortInput != nil {
					t.AbortInput.Push(hal.InputResetPress)
				}
			}
		}
	}
}

// RunRenderTask is the lower-priority Render task's body: it does
// nothing but poll the published snapshot and hand it to onSnapshot.
// A real display driver would draw from the Snapshot it receives;
// cmd/trickler uses the tick to log and to flush persisted state.
func (t *Tasks) RunRenderTask(onSnapshot func(Snapshot)) {
	ticker := time.NewTicker(renderPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			onSnapshot(t.Snapshot())
		}
	}
}
