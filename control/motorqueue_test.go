package control

import (
	"testing"
	"time"

	"github.com/opentrickler/trickler-core/hal"
)

func TestMotorQueueDropsOldestWhenFull(t *testing.T) {
	q := NewMotorQueue()
	for i := 0; i < motorQueueCapacity; i++ {
		q.Submit(MotorCommand{Motor: hal.MotorCoarse, RPS: float64(i)})
	}
	// Queue is now full; submitting one more must drop the oldest (RPS=0)
	// rather than block, so the newest command is the one that survives
	// at the tail.
	q.Submit(MotorCommand{Motor: hal.MotorCoarse, RPS: 99})

	var last MotorCommand
	for i := 0; i < motorQueueCapacity; i++ {
		last = q.Receive()
	}
	if last.RPS != 99 {
		t.Fatalf("last received command RPS = %v, want 99 (newest command retains authority)", last.RPS)
	}
}

// fakeDriver notifies applied on every SetSpeed so the test can
// synchronize with RunMotorTask's goroutine without a data race on
// shared state.
type fakeDriver struct {
	applied chan MotorCommand
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{applied: make(chan MotorCommand, 1)}
}

func (f *fakeDriver) SetSpeed(id hal.MotorID, rps float64) {
	f.applied <- MotorCommand{Motor: id, RPS: rps, On: true}
}
func (f *fakeDriver) Enable(id hal.MotorID, on bool)  {}
func (f *fakeDriver) MinSpeed(id hal.MotorID) float64 { return 0 }
func (f *fakeDriver) MaxSpeed(id hal.MotorID) float64 { return 10 }

func TestQueuedMotorSubmitsThroughToDriverViaMotorTask(t *testing.T) {
	driver := newFakeDriver()
	queue := NewMotorQueue()
	qm := NewQueuedMotor(queue, driver)

	done := make(chan struct{})
	go RunMotorTask(queue, driver, done)
	defer close(done)

	qm.SetSpeed(hal.MotorFine, 3.5)

	select {
	case cmd := <-driver.applied:
		if cmd.Motor != hal.MotorFine || cmd.RPS != 3.5 {
			t.Fatalf("driver received %+v, want Fine/3.5", cmd)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Motor task to apply the command")
	}
}
