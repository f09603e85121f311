package platform

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Pipe adapts callback-driven platform clients to the pull-based Stream.
// The client side calls Send for each event and End when the connection is gone;
// the ingestion side calls Next and Close.
type Pipe struct {
	events chan Event

	ended    chan struct{}
	endOnce  sync.Once
	endErr   error
	closed   chan struct{}
	closeOne sync.Once
	onClose  func() error
	closeErr error
}

// NewPipe creates a pipe buffering up to buffer events. onClose, if set, runs once on Close.
func NewPipe(buffer int, onClose func() error) *Pipe {
	return &Pipe{
		events:  make(chan Event, buffer),
		ended:   make(chan struct{}),
		closed:  make(chan struct{}),
		onClose: onClose,
	}
}

// Send queues e, waiting while the buffer is full. It returns false once the
// pipe has ended or been closed.
func (p *Pipe) Send(e Event) bool {
	select {
	case <-p.ended:
		return false
	case <-p.closed:
		return false
	default:
	}
	select {
	case p.events <- e:
		return true
	case <-p.ended:
		return false
	case <-p.closed:
		return false
	}
}

// End marks the stream finished. Queued events are still returned by Next before err.
// A nil err ends with io.EOF; any other err is reported as fatal. Only the first call has effect.
func (p *Pipe) End(err error) {
	p.endOnce.Do(func() {
		if err == nil {
			err = io.EOF
		} else if !errors.Is(err, io.EOF) {
			err = Fatal(err)
		}
		p.endErr = err
		close(p.ended)
	})
}

// Next returns the next queued event, the end error, or ctx's error.
func (p *Pipe) Next(ctx context.Context) (Event, error) {
	select {
	case e := <-p.events:
		return e, nil
	default:
	}
	select {
	case e := <-p.events:
		return e, nil
	case <-p.ended:
		select {
		case e := <-p.events:
			return e, nil
		default:
			return Event{}, p.endErr
		}
	case <-p.closed:
		return Event{}, io.EOF
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Close releases the underlying client. Safe to call more than once.
func (p *Pipe) Close() error {
	p.closeOne.Do(func() {
		close(p.closed)
		if p.onClose != nil {
			p.closeErr = p.onClose()
		}
	})
	return p.closeErr
}
