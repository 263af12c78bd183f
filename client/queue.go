package client

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vsariola/tunesync/bus"
	"github.com/vsariola/tunesync/sysex"
)

const (
	// MIDIQueueLength is the number of messages a MIDIQueue holds.
	MIDIQueueLength = 16
	// MaxMIDIMessage is the largest message a MIDIQueue accepts; it fits
	// every MTS form.
	MaxMIDIMessage = 1024
)

// MIDIQueue hands MIDI data from the audio thread to a goroutine. Push copies
// the data into one of a fixed set of buffers and never blocks or allocates;
// when no buffer is free, the message is dropped and counted.
type MIDIQueue struct {
	handle  func([]byte)
	free    chan *[]byte
	pending chan *[]byte
	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
	stopped   chan struct{}
}

// NewMIDIQueue starts a goroutine calling handle for every pushed message.
// The slice passed to handle is reused after handle returns.
func NewMIDIQueue(handle func([]byte)) *MIDIQueue {
	q := &MIDIQueue{
		handle:  handle,
		free:    make(chan *[]byte, MIDIQueueLength),
		pending: make(chan *[]byte, MIDIQueueLength),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for range MIDIQueueLength {
		buf := make([]byte, 0, MaxMIDIMessage)
		q.free <- &buf
	}
	go q.run()
	return q
}

// Push queues a copy of data and reports whether it was queued.
func (q *MIDIQueue) Push(data []byte) bool {
	if len(data) == 0 || len(data) > MaxMIDIMessage {
		q.dropped.Add(1)
		return false
	}
	var buf *[]byte
	select {
	case buf = <-q.free:
	default:
		q.dropped.Add(1)
		return false
	}
	*buf = append((*buf)[:0], data...)
	if !bus.TrySend(q.pending, buf) {
		q.free <- buf
		q.dropped.Add(1)
		return false
	}
	return true
}

// Dropped counts the messages Push could not queue.
func (q *MIDIQueue) Dropped() uint64 { return q.dropped.Load() }

// Close stops the goroutine. Messages still queued are discarded.
func (q *MIDIQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		<-q.stopped
	})
}

func (q *MIDIQueue) run() {
	defer close(q.stopped)
	for {
		select {
		case <-q.done:
			return
		case buf := <-q.pending:
			q.handle(*buf)
			q.free <- buf
		}
	}
}

// Parser returns a MIDIQueue handler applying MTS messages to the shared
// tuning. Rejected messages are logged; other MIDI data is ignored.
func (c *Client) Parser(logger *slog.Logger) func([]byte) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(data []byte) {
		err := c.ParseMIDIData(data)
		switch {
		case err == nil:
			logger.Debug("applied MTS message", "name", c.ScaleName())
		case errors.Is(err, sysex.ErrNotSysEx), errors.Is(err, sysex.ErrNotMTS):
		case errors.Is(err, ErrMasterPresent):
			logger.Debug("MTS message ignored, following the master")
		default:
			logger.Warn("rejected MTS message", "err", err, "size", len(data))
		}
	}
}
