// Package attention derives how long items have sat in their current stage and
// whether that warrants a warning. It performs no I/O.
package attention

import (
	"sort"
	"time"

	"stageline/internal/domain"
)

// Level is the alert raised for an item that has sat too long in one stage.
type Level string

const (
	LevelNone    Level = "NONE"
	LevelWarning Level = "WARNING"
	LevelDanger  Level = "DANGER"
)

const day = 24 * time.Hour

// Thresholds are the day counts at which an item turns WARNING and DANGER.
type Thresholds struct {
	Warning int `json:"warning_days"`
	Danger  int `json:"danger_days"`
}

// DefaultThresholds are 7 and 14 days.
var DefaultThresholds = Thresholds{Warning: 7, Danger: 14}

type Policy struct {
	Thresholds   Thresholds
	ActiveStages []domain.Stage
}

func DefaultPolicy() Policy {
	return Policy{Thresholds: DefaultThresholds, ActiveStages: domain.ActiveStages()}
}

// DaysInStage is the number of whole days between the last stage change and now.
// A change in the future counts as zero.
func DaysInStage(lastChange, now time.Time) int {
	d := now.Sub(lastChange)
	if d <= 0 {
		return 0
	}
	return int(d / day)
}

// LevelFor maps a day count onto NONE < Warning <= WARNING < Danger <= DANGER.
func (t Thresholds) LevelFor(days int) Level {
	switch {
	case days >= t.Danger:
		return LevelDanger
	case days >= t.Warning:
		return LevelWarning
	default:
		return LevelNone
	}
}

func (p Policy) isActive(s domain.Stage) bool {
	for _, st := range p.ActiveStages {
		if st == s {
			return true
		}
	}
	return false
}

// Evaluate returns the alert level for an item. Items on hold or outside the
// active stages are never alerted.
func (p Policy) Evaluate(it domain.WorkItem, days int) Level {
	if it.IsOnHold || !p.isActive(it.Stage) {
		return LevelNone
	}
	return p.Thresholds.LevelFor(days)
}

// HoldDays rounds a hold period up to whole days, so any started day counts.
func HoldDays(start, end time.Time) int {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	days := int(d / day)
	if d%day != 0 {
		days++
	}
	return days
}

type ItemStatus struct {
	Item        domain.WorkItem `json:"item"`
	DaysInStage int             `json:"days_in_stage"`
	Level       Level           `json:"level"`
}

type HeldItem struct {
	Item     domain.WorkItem `json:"item"`
	HoldDays int             `json:"hold_days"`
	Reason   string          `json:"reason,omitempty"`
}

type Report struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Thresholds  Thresholds           `json:"thresholds"`
	Items       []ItemStatus         `json:"items"`
	OnHold      []HeldItem           `json:"on_hold"`
	Warning     int                  `json:"warning"`
	Danger      int                  `json:"danger"`
	StageCounts map[domain.Stage]int `json:"stage_counts"`
}

// BuildReport evaluates items against their last stage change. Items missing from
// lastChange fall back to their creation time. Active items are sorted by days in
// stage, longest first.
func (p Policy) BuildReport(items []domain.WorkItem, lastChange map[string]time.Time, now time.Time) Report {
	rep := Report{GeneratedAt: now, Thresholds: p.Thresholds, Items: []ItemStatus{}, OnHold: []HeldItem{}}
	for _, it := range items {
		if it.IsOnHold {
			h := HeldItem{Item: it}
			if it.HoldStartedAt != nil {
				h.HoldDays = HoldDays(*it.HoldStartedAt, now)
			}
			if it.HoldReason != nil {
				h.Reason = *it.HoldReason
			}
			rep.OnHold = append(rep.OnHold, h)
			continue
		}
		if !p.isActive(it.Stage) {
			continue
		}
		since, ok := lastChange[it.ID]
		if !ok {
			since = it.CreatedAt
		}
		days := DaysInStage(since, now)
		st := ItemStatus{Item: it, DaysInStage: days, Level: p.Evaluate(it, days)}
		switch st.Level {
		case LevelWarning:
			rep.Warning++
		case LevelDanger:
			rep.Danger++
		}
		rep.Items = append(rep.Items, st)
	}
	sort.SliceStable(rep.Items, func(i, j int) bool { return rep.Items[i].DaysInStage > rep.Items[j].DaysInStage })
	sort.SliceStable(rep.OnHold, func(i, j int) bool { return rep.OnHold[i].HoldDays > rep.OnHold[j].HoldDays })
	return rep
}
