// Package control wires the components and hal capabilities into the
// four long-lived tasks: Control, Render, Motor, Network. Implemented
// with goroutines and channels (TinyGo supports goroutines on the
// targeted boards) rather than an async runtime.
package control

import "github.com/opentrickler/trickler-core/hal"

// MotorCommand is one fire-and-forget speed command submitted to the
// Motor task.
type MotorCommand struct {
	Motor hal.MotorID
	RPS   float64
	On    bool
}

// motorQueueCapacity bounds the fixed-size motor command queue.
const motorQueueCapacity = 8

// MotorQueue is the bounded, drop-oldest-on-full queue between Control
// (the one writer) and the Motor task (the one executor): motor
// authority is the latest requested speed, so a full queue drops its
// oldest pending command.
type MotorQueue struct {
	ch chan MotorCommand
}

func NewMotorQueue() *MotorQueue {
	return &MotorQueue{ch: make(chan MotorCommand, motorQueueCapacity)}
}

// Submit enqueues cmd, dropping the oldest queued command if full so the
// newest request always wins authority over motor speed.
func (q *MotorQueue) Submit(cmd MotorCommand) {
	for {
		select {
		case q.ch <- cmd:
			return
		default:
			select {
			case <-q.ch:
			default:
			}
		}
	}
}

// Receive blocks until a command is available; the Motor task's only
// suspension point.
func (q *MotorQueue) Receive() MotorCommand {
	return <-q.ch
}
