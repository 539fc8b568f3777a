// Package hci implements the ordered FIFO command dispatcher (C1): it
// submits one outgoing controller command at a time and correlates each
// completion back to its caller by opcode (and, for vendor multi
// advertising, by sub-opcode).
//
// The dispatcher follows the teacher's linux/hci.go send/pkt pattern — a
// channel-fed sender with a per-command completion handoff — generalized
// from "one pending command per opcode" to a single strict FIFO, since
// §4.1 requires exactly one command in flight for the whole dispatcher,
// not one per opcode.
package hci

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/btcore"
)

// Command is anything the dispatcher can marshal and send: an opcode, a
// payload, and, for vendor multi-advertising commands, a sub-opcode used
// to correlate the vendor completion event.
type Command interface {
	OpCode() uint16
	SubOpCode() uint8 // 0 for non-vendor commands
	Marshal() ([]byte, error)
}

// CommandCompleteEvent is the decoded body of a Command Complete or
// Command Status event: status plus any return parameter bytes.
type CommandCompleteEvent struct {
	Status     btcore.StatusCode
	ReturnBody []byte
}

// OnComplete is invoked, on the dispatcher's own goroutine, when the
// controller replies to the command it was given, or when the dispatcher
// is stopped with the command still pending or queued.
type OnComplete func(CommandCompleteEvent, error)

// Sender writes a fully framed HCI command packet to the transport. The
// transport itself (socket, H4 framing, USB) is out of scope (§1) — the
// dispatcher only needs something that can write bytes.
type Sender interface {
	Send(b []byte) error
}

type request struct {
	cmd Command
	cb  OnComplete
}

type completion struct {
	opcode    uint16
	subOpcode uint8
	evt       CommandCompleteEvent
}

// Dispatcher is the FIFO command queue described in §4.1. All queue and
// in-flight state is owned by a single goroutine (run); Enqueue and
// HandleCommandComplete only ever hand work to it over channels.
type Dispatcher struct {
	sender Sender
	logger btcore.Logger

	chEnqueue  chan request
	chComplete chan completion
	done       chan struct{}
	stopOnce   sync.Once
}

// NewDispatcher builds a dispatcher that writes framed commands to sender.
func NewDispatcher(sender Sender) *Dispatcher {
	d := &Dispatcher{
		sender:     sender,
		logger:     btcore.GetLogger(),
		chEnqueue:  make(chan request, 64),
		chComplete: make(chan completion, 4),
		done:       make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue places cmd at the tail of the FIFO (§4.1 "enqueue(cmd,
// on_complete) places a command at the tail").
func (d *Dispatcher) Enqueue(cmd Command, cb OnComplete) {
	select {
	case d.chEnqueue <- request{cmd: cmd, cb: cb}:
	case <-d.done:
		if cb != nil {
			cb(CommandCompleteEvent{}, fmt.Errorf("hci: dispatcher stopped"))
		}
	}
}

// HandleCommandComplete routes a Command Complete / Command Status event
// to the one pending command, matching by opcode and, for vendor multi
// advertising completions, sub-opcode (§4.1). A completion matching
// nothing pending is logged and dropped.
func (d *Dispatcher) HandleCommandComplete(opcode uint16, subOpcode uint8, evt CommandCompleteEvent) {
	select {
	case d.chComplete <- completion{opcode: opcode, subOpcode: subOpcode, evt: evt}:
	case <-d.done:
	}
}

// Stop halts the dispatcher; queued and in-flight commands fail their
// callbacks immediately.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
	})
}

func (d *Dispatcher) run() {
	var queue []request
	var pending *request

	fail := func(req request, err error) {
		if req.cb != nil {
			req.cb(CommandCompleteEvent{}, err)
		}
	}

	send := func(req request) bool {
		payload, err := req.cmd.Marshal()
		if err != nil {
			fail(req, errors.Wrap(err, "hci: marshal failed"))
			return false
		}
		// HCI command packet framing [Vol 4, Part E, 5.4.1]: packet type
		// (0x01), opcode (LE), parameter length, parameters.
		b := make([]byte, 4+len(payload))
		b[0] = 0x01
		b[1] = byte(req.cmd.OpCode())
		b[2] = byte(req.cmd.OpCode() >> 8)
		b[3] = byte(len(payload))
		copy(b[4:], payload)
		if err := d.sender.Send(b); err != nil {
			fail(req, errors.Wrap(err, "hci: send failed"))
			return false
		}
		return true
	}

	// advance submits the next queued command if none is in flight,
	// retrying synchronously past any command that fails to marshal or
	// send so the FIFO never stalls on a single bad entry.
	advance := func() {
		for pending == nil && len(queue) > 0 {
			req := queue[0]
			queue = queue[1:]
			if send(req) {
				pending = &req
				return
			}
		}
	}

	for {
		select {
		case <-d.done:
			if pending != nil {
				fail(*pending, fmt.Errorf("hci: dispatcher stopped"))
				pending = nil
			}
			for _, req := range queue {
				fail(req, fmt.Errorf("hci: dispatcher stopped"))
			}
			return

		case req := <-d.chEnqueue:
			queue = append(queue, req)
			advance()

		case c := <-d.chComplete:
			if pending == nil || pending.cmd.OpCode() != c.opcode ||
				(pending.cmd.OpCode() == opLEMultiAdvt && pending.cmd.SubOpCode() != c.subOpcode) {
				d.logger.Warnf("hci: dropping unmatched completion opcode=0x%04x sub=0x%02x", c.opcode, c.subOpcode)
				continue
			}
			done := *pending
			pending = nil
			if done.cb != nil {
				done.cb(c.evt, nil)
			}
			advance()
		}
	}
}
