package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/logger"
)

// EventType distinguishes stage lifecycle events.
type EventType string

const (
	StageStarted   EventType = "started"
	StageCompleted EventType = "completed"
	StageFailed    EventType = "failed"
)

// Event is emitted by the engine's coordinating goroutine, so observers see
// events in the order the engine acted on them.
type Event struct {
	Type     EventType
	Stage    StageName
	RunID    string
	Time     time.Time
	Duration time.Duration
	Count    int
	Err      error
}

// Observer receives stage events. OnEvent must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// Recorder keeps every event, for tests and run summaries.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// OnEvent implements Observer.
func (r *Recorder) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Durations returns the duration of each completed stage.
func (r *Recorder) Durations() map[StageName]time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[StageName]time.Duration)
	for _, ev := range r.events {
		if ev.Type == StageCompleted {
			out[ev.Stage] = ev.Duration
		}
	}
	return out
}

// LogObserver reports stage progress at info level.
type LogObserver struct {
	Log *zap.SugaredLogger
}

// OnEvent implements Observer.
func (o LogObserver) OnEvent(ev Event) {
	log := logger.OrNop(o.Log)
	switch ev.Type {
	case StageStarted:
		log.Debugw("Stage started", logger.FieldRunID, ev.RunID, logger.FieldStage, ev.Stage)
	case StageCompleted:
		log.Infow("Stage completed",
			logger.FieldRunID, ev.RunID,
			logger.FieldStage, ev.Stage,
			logger.FieldCount, ev.Count,
			logger.FieldDurationMS, ev.Duration.Milliseconds())
	case StageFailed:
		log.Warnw("Stage failed", logger.FieldRunID, ev.RunID, logger.FieldStage, ev.Stage, logger.FieldError, ev.Err)
	}
}
