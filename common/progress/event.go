package progress

import (
	"encoding/json"
	"fmt"
)

// Stage is the wire name of an event's state
type Stage string

const (
	StageExisted Stage = "already_existed"
	StageWip     Stage = "wip"
	StageOk      Stage = "ok"
	StageError   Stage = "error"
)

// ExistedPercent marks an upload that was deduplicated against a committed record
const ExistedPercent = -1

// Event is one progress report for an ingestion
type Event struct {
	ID      string
	Stage   Stage
	Percent int
	Err     string
}

// Existed reports a deduplicated upload
func Existed(id string) Event {
	return Event{ID: id, Stage: StageExisted, Percent: ExistedPercent}
}

// Wip reports intermediate progress
func Wip(id string, percent int) Event {
	return Event{ID: id, Stage: StageWip, Percent: percent}
}

// Ok reports successful completion
func Ok(id string) Event {
	return Event{ID: id, Stage: StageOk, Percent: 100}
}

// Failed reports a stage failure at the last reached percentage
func Failed(id string, percent int, err error) Event {
	ev := Event{ID: id, Stage: StageError, Percent: percent}
	if err != nil {
		ev.Err = err.Error()
	}
	return ev
}

// Terminal reports whether no event may follow this one
func (e Event) Terminal() bool {
	switch e.Stage {
	case StageExisted, StageOk, StageError:
		return true
	default:
		return false
	}
}

type wireEvent struct {
	ID       string `json:"id"`
	Progress int    `json:"progress"`
	State    Stage  `json:"state"`
	Error    string `json:"error,omitempty"`
}

// MarshalJSON encodes the event as {"id","progress","state"} with an
// optional "error" field.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{ID: e.ID, Progress: e.Percent, State: e.Stage, Error: e.Err})
}

// UnmarshalJSON decodes the wire form
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.State {
	case StageExisted, StageWip, StageOk, StageError:
	default:
		return fmt.Errorf("unknown progress state %q", w.State)
	}
	*e = Event{ID: w.ID, Stage: w.State, Percent: w.Progress, Err: w.Error}
	return nil
}
