package progress

import (
	"fmt"
	"sync"
)

// Status identifies the externally visible state of a summarization request.
type Status string

const (
	StatusPending      Status = "pending"
	StatusUploading    Status = "uploading"
	StatusProcessing   Status = "processing"
	StatusConverting   Status = "converting"
	StatusTranscribing Status = "transcribing"
	StatusSummarizing  Status = "summarizing"
	StatusDone         Status = "done"
	StatusError        Status = "error"
)

// Event is one progress update for a single request.
// Progress is 0-100 and never decreases within one request.
type Event struct {
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

// Stage describes one pipeline phase and the slice of the overall
// 0-100 scale it owns.
type Stage struct {
	Name    string
	Status  Status
	Lo      int
	Hi      int
	Message string
}

// The five stages cover the full scale with no gaps and no overlaps.
var (
	StageInit         = Stage{Name: "init", Status: StatusPending, Lo: 0, Hi: 5, Message: "Preparing request"}
	StageMedia        = Stage{Name: "media", Status: StatusConverting, Lo: 5, Hi: 35, Message: "Processing media"}
	StageTranscribing = Stage{Name: "transcribing", Status: StatusTranscribing, Lo: 35, Hi: 70, Message: "Transcribing audio"}
	StageSummarizing  = Stage{Name: "summarizing", Status: StatusSummarizing, Lo: 70, Hi: 95, Message: "Generating summary"}
	StageDone         = Stage{Name: "done", Status: StatusDone, Lo: 95, Hi: 100, Message: "Completed"}
)

// emitDelta is the minimum advance, in percentage points, between two
// non-terminal emissions. First and terminal events always go out.
const emitDelta = 5

// Tracker maps per-stage percentages onto the absolute 0-100 scale and
// pushes throttled events into a bounded channel. One Tracker serves
// exactly one request; the consumer drains Events until it is closed.
type Tracker struct {
	mu       sync.Mutex
	events   chan Event
	stage    Stage
	absolute int
	lastSent int
	sentAny  bool
	terminal bool
}

// NewTracker creates a tracker with a bounded event channel.
func NewTracker(buffer int) *Tracker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Tracker{
		events: make(chan Event, buffer),
		stage:  StageInit,
	}
}

// Events returns the ordered event stream for this request. The channel
// is closed after the terminal done or error event.
func (t *Tracker) Events() <-chan Event {
	return t.events
}

// Enter moves the tracker into a stage and emits the stage's entry
// message at the low end of its range.
func (t *Tracker) Enter(stage Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal {
		return
	}
	t.stage = stage
	t.advance(stage.Lo, stage.Status, stage.Message)
}

// Update maps an intra-stage percentage (0-100) into the current
// stage's absolute range.
func (t *Tracker) Update(stagePercent float64, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal {
		return
	}
	if stagePercent < 0 {
		stagePercent = 0
	}
	if stagePercent > 100 {
		stagePercent = 100
	}
	abs := t.stage.Lo + int(stagePercent/100*float64(t.stage.Hi-t.stage.Lo))
	if message == "" {
		message = t.stage.Message
	}
	t.advance(abs, t.stage.Status, message)
}

// SetStatus overrides the emitted status for the current stage, e.g.
// "uploading" while the media stage routes through blob storage.
func (t *Tracker) SetStatus(status Status, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal {
		return
	}
	t.stage.Status = status
	if message != "" {
		t.stage.Message = message
	}
	t.advance(t.absolute, status, t.stage.Message)
}

// Done emits the terminal event at exactly 100 and closes the stream.
func (t *Tracker) Done(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal {
		return
	}
	t.terminal = true
	if message == "" {
		message = StageDone.Message
	}
	t.send(Event{Status: StatusDone, Message: message, Progress: 100}, true)
	close(t.events)
}

// Fail emits the terminal error event at the current progress value and
// closes the stream. Only the human-readable message crosses this
// boundary; internals stay in server logs.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal {
		return
	}
	t.terminal = true
	msg := "processing failed"
	if err != nil {
		msg = err.Error()
	}
	t.send(Event{
		Status:   StatusError,
		Message:  fmt.Sprintf("Error: %s", msg),
		Progress: t.absolute,
		Error:    msg,
	}, true)
	close(t.events)
}

// advance applies the monotonic clamp and the emission throttle.
// Callers hold t.mu.
func (t *Tracker) advance(abs int, status Status, message string) {
	if abs < t.absolute {
		abs = t.absolute
	}
	// 100 is reserved for the terminal done event.
	if abs >= 100 {
		abs = 99
	}
	t.absolute = abs

	if t.sentAny && abs-t.lastSent < emitDelta {
		return
	}
	t.send(Event{Status: status, Message: message, Progress: abs}, false)
}

// send delivers one event. Non-terminal events are dropped when the
// consumer lags behind the bounded channel; a terminal event evicts
// the oldest buffered event so the sequence always ends with it.
func (t *Tracker) send(ev Event, terminal bool) {
	select {
	case t.events <- ev:
	default:
		if !terminal {
			return
		}
		select {
		case <-t.events:
		default:
		}
		// t.mu serializes senders, so the freed slot is still free.
		select {
		case t.events <- ev:
		default:
		}
	}
	t.sentAny = true
	t.lastSent = ev.Progress
}
