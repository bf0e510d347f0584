package transport

import (
	"io"
	"sync"
)

// EventType is the stage of a transfer an Event reports.
type EventType int

const (
	TransferInitiated EventType = iota // Get was called
	TransferStarted                    // The remote accepted and data is about to flow
	TransferProgress                   // Some bytes were written to the destination
	TransferCompleted                  // All bytes were written
	TransferFailed                     // The transfer ended with Event.Err
)

func (t EventType) String() string {
	switch t {
	case TransferInitiated:
		return "initiated"
	case TransferStarted:
		return "started"
	case TransferProgress:
		return "progress"
	case TransferCompleted:
		return "completed"
	case TransferFailed:
		return "failed"
	}
	return "unknown"
}

// Event describes one step of a transfer.
type Event struct {
	Type        EventType
	Resource    string // resource name passed to Get
	Endpoint    string // endpoint URL
	Length      int64  // expected size in bytes, -1 when unknown
	Transferred int64  // bytes written so far
	Err         error  // set for TransferFailed
}

// Listener observes transfers and receives debug messages. Listeners are
// purely diagnostic and must not influence the transfer.
type Listener interface {
	TransferEvent(ev Event)
	Debug(message string)
}

// Listeners is a fan-out list of Listener values. The zero value is ready
// to use and transports embed it to implement AddTransferListener.
type Listeners struct {
	mu        sync.RWMutex
	listeners []Listener
}

// AddTransferListener registers l. Nil listeners are ignored.
func (ls *Listeners) AddTransferListener(l Listener) {
	if l == nil {
		return
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.listeners = append(ls.listeners, l)
}

// Fire delivers ev to every registered listener.
func (ls *Listeners) Fire(ev Event) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	for _, l := range ls.listeners {
		l.TransferEvent(ev)
	}
}

// Debug delivers message to every registered listener.
func (ls *Listeners) Debug(message string) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	for _, l := range ls.listeners {
		l.Debug(message)
	}
}

// Len returns the number of registered listeners.
func (ls *Listeners) Len() int {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return len(ls.listeners)
}

// ProgressWriter counts bytes written through it and fires a
// TransferProgress event per write.
type ProgressWriter struct {
	Writer    io.Writer
	Event     Event // template; Type and Transferred are overwritten
	Listeners *Listeners
	written   int64
}

// Write implements io.Writer.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.written += int64(n)
	if pw.Listeners != nil && n > 0 {
		ev := pw.Event
		ev.Type = TransferProgress
		ev.Transferred = pw.written
		pw.Listeners.Fire(ev)
	}
	return n, err
}

// Written returns the number of bytes written so far.
func (pw *ProgressWriter) Written() int64 {
	return pw.written
}
