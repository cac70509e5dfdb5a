package services

import (
	"github.com/sirupsen/logrus"
)

// progressDispatcher decouples row processing from the caller's sink: one
// ordered buffered channel drained by a dedicated goroutine. The engine
// never waits on the sink; when the buffer is full the event is dropped,
// and a panicking sink is logged and abandoned for the rest of the run.
type progressDispatcher struct {
	ch  chan ProgressEvent
	log *logrus.Entry
}

func newProgressDispatcher(sink ProgressFunc, buffer int, log *logrus.Entry) *progressDispatcher {
	if sink == nil {
		return &progressDispatcher{log: log}
	}
	if buffer <= 0 {
		buffer = 1
	}
	d := &progressDispatcher{ch: make(chan ProgressEvent, buffer), log: log}
	go d.drain(sink)
	return d
}

func (d *progressDispatcher) drain(sink ProgressFunc) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("import: progress sink panicked: %v", r)
			// Keep draining so emit never blocks on a dead consumer.
			for range d.ch {
			}
		}
	}()
	for ev := range d.ch {
		sink(ev)
	}
}

func (d *progressDispatcher) emit(ev ProgressEvent) {
	if d.ch == nil {
		return
	}
	select {
	case d.ch <- ev:
	default:
		d.log.Debugf("import: progress buffer full, dropping event for %s row %d", ev.Family, ev.RowIndex)
	}
}

func (d *progressDispatcher) close() {
	if d.ch != nil {
		close(d.ch)
	}
}
