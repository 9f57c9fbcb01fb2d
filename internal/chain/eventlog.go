package chain

import (
	"crest_go/internal/event"
)

// EventLog is the append-only list of emitted chain events. Reverted
// executions truncate back to the entry mark, so observers only ever see
// events from committed transactions.
//
// The sink is fed through a flushed watermark: appends outside any open
// transaction flush immediately, appends inside one are held until the
// outermost commit. A revert truncates held events before they can flush,
// so the sink never sees an event from a failed transaction.
type EventLog struct {
	seq     uint64
	events  []event.Event
	flushed int
	open    int
	sink    func(event.Event)
}

// NewEventLog creates an empty log. sink, if non-nil, receives every
// committed event (used to feed the WAL store); it may be nil.
func NewEventLog(sink func(event.Event)) *EventLog {
	return &EventLog{sink: sink}
}

func (l *EventLog) nextSeq() uint64 {
	l.seq++
	return l.seq
}

// append records an event. With no transaction open it reaches the sink
// right away; inside one it waits for the outermost commit.
func (l *EventLog) append(ev event.Event) {
	l.events = append(l.events, ev)
	if l.open == 0 {
		l.flush()
	}
}

// mark opens a transaction scope and returns the current log length for
// revert truncation. Every mark is paired with exactly one commit or
// revertTo.
func (l *EventLog) mark() int {
	l.open++
	return len(l.events)
}

// revertTo closes a scope and discards events appended after the mark.
func (l *EventLog) revertTo(mark int, seqMark uint64) {
	l.open--
	l.events = l.events[:mark]
	l.seq = seqMark
}

// commit closes a scope; closing the outermost one flushes everything past
// the watermark to the sink.
func (l *EventLog) commit() {
	l.open--
	if l.open == 0 {
		l.flush()
	}
}

func (l *EventLog) flush() {
	if l.sink != nil {
		for _, ev := range l.events[l.flushed:] {
			l.sink(ev)
		}
	}
	l.flushed = len(l.events)
}

// Events returns the committed event list. Callers must not mutate it.
func (l *EventLog) Events() []event.Event { return l.events }
