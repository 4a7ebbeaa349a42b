package domain

import (
	"fmt"
	"strings"
)

// Stage is a column of the pipeline. The order of Stages() is the pipeline order.
type Stage string

const (
	StageBacklog        Stage = "BACKLOG"
	StagePlanned        Stage = "PLANNED"
	StageInDevelopment  Stage = "IN_DEVELOPMENT"
	StageCodeReview     Stage = "CODE_REVIEW"
	StageQA             Stage = "QA"
	StageReadyForProd   Stage = "READY_FOR_PROD"
	StageDeployed       Stage = "DEPLOYED"
	StageMonitoring     Stage = "MONITORING"
	StageClientDelivery Stage = "CLIENT_DELIVERY"
	StageComplete       Stage = "COMPLETE"
)

var stageOrder = []Stage{
	StageBacklog,
	StagePlanned,
	StageInDevelopment,
	StageCodeReview,
	StageQA,
	StageReadyForProd,
	StageDeployed,
	StageMonitoring,
	StageClientDelivery,
	StageComplete,
}

// Stages returns all stages in pipeline order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// ActiveStages are the stages before an item ships.
func ActiveStages() []Stage {
	return Stages()[:6]
}

// ParseStage accepts the canonical name in any case; anything else is rejected.
func ParseStage(s string) (Stage, error) {
	candidate := Stage(strings.ToUpper(strings.TrimSpace(s)))
	if candidate.Valid() {
		return candidate, nil
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

func (s Stage) Valid() bool {
	return s.Index() >= 0
}

// Index is the position of s in the pipeline, or -1.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) String() string { return string(s) }

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

func (p Priority) String() string { return string(p) }

// Action tags an audit event.
type Action string

const (
	ActionCreated          Action = "created"
	ActionUpdated          Action = "updated"
	ActionDeleted          Action = "deleted"
	ActionStageChanged     Action = "stage_changed"
	ActionPutOnHold        Action = "put_on_hold"
	ActionResumed          Action = "resumed"
	ActionPriorityChanged  Action = "priority_changed"
	ActionClientCreated    Action = "client_created"
	ActionTimerStarted     Action = "timer_started"
	ActionTimerStopped     Action = "timer_stopped"
	ActionTimeLogged       Action = "time_logged"
	ActionTimeEntryDeleted Action = "time_entry_deleted"
	ActionNoteAdded        Action = "note_added"
	ActionTagCreated       Action = "tag_created"
	ActionTagged           Action = "tagged"
	ActionUntagged         Action = "untagged"
)

var actions = map[Action]struct{}{
	ActionCreated:          {},
	ActionUpdated:          {},
	ActionDeleted:          {},
	ActionStageChanged:     {},
	ActionPutOnHold:        {},
	ActionResumed:          {},
	ActionPriorityChanged:  {},
	ActionClientCreated:    {},
	ActionTimerStarted:     {},
	ActionTimerStopped:     {},
	ActionTimeLogged:       {},
	ActionTimeEntryDeleted: {},
	ActionNoteAdded:        {},
	ActionTagCreated:       {},
	ActionTagged:           {},
	ActionUntagged:         {},
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if a.Valid() {
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

func (a Action) String() string { return string(a) }
