package control

import "github.com/opentrickler/trickler-core/hal"

// QueuedMotor implements hal.Motor for the Control task: SetSpeed/Enable
// never block and never touch the driver directly, they submit through
// the bounded MotorQueue that the Motor task alone drains.
// MinSpeed/MaxSpeed are read-only bound queries and pass straight
// through.
type QueuedMotor struct {
	queue  *MotorQueue
	driver hal.Motor
}

func NewQueuedMotor(queue *MotorQueue, driver hal.Motor) *QueuedMotor {
	return &QueuedMotor{queue: queue, driver: driver}
}

func (q *QueuedMotor) SetSpeed(id hal.MotorID, rps float64) {
	q.queue.Submit(MotorCommand{Motor: id, RPS: rps, On: true})
}

func (q *QueuedMotor) Enable(id hal.MotorID, on bool) {
	q.queue.Submit(MotorCommand{Motor: id, On: on})
}

func (q *QueuedMotor) MinSpeed(id hal.MotorID) float64 { return q.driver.MinSpeed(id) }
func (q *QueuedMotor) MaxSpeed(id hal.MotorID) float64 { return q.driver.MaxSpeed(id) }

// RunMotorTask drains the queue and applies each command to the real
// driver, smoothing nothing beyond what the driver itself does -- this
// is the Motor task's entire body, the one goroutine that owns the
// motor driver.
func RunMotorTask(queue *MotorQueue, driver hal.Motor, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		cmd := queue.Receive()
		if cmd.RPS != 0 || cmd.On {
			driver.SetSpeed(cmd.Motor, cmd.RPS)
		}
		driver.Enable(cmd.Motor, cmd.On)
	}
}
