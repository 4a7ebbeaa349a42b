package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/repo"
)

// --- Shared types ---

// EntryView is a time entry with timestamps rendered as RFC 3339 strings.
type EntryView struct {
	ID              string `json:"id"                         jsonschema:"time entry ID"`
	ItemID          string `json:"item_id"                    jsonschema:"work item ID"`
	Description     string `json:"description,omitempty"      jsonschema:"what the time was spent on"`
	StartedAt       string `json:"started_at"                 jsonschema:"start timestamp"`
	EndedAt         string `json:"ended_at,omitempty"         jsonschema:"end timestamp, empty while running"`
	DurationMinutes int    `json:"duration_minutes"           jsonschema:"whole minutes, 0 while running"`
	Running         bool   `json:"running"                    jsonschema:"whether the timer is still running"`
	Billable        bool   `json:"billable"                   jsonschema:"whether the entry is billable"`
}

// ItemView is a compact work item.
type ItemView struct {
	ID            string `json:"id"                    jsonschema:"work item ID"`
	Name          string `json:"name"                  jsonschema:"work item name"`
	Stage         string `json:"stage"                 jsonschema:"current pipeline stage"`
	Position      int    `json:"position"              jsonschema:"position within the stage"`
	Priority      string `json:"priority"              jsonschema:"LOW, MEDIUM, HIGH or URGENT"`
	OnHold        bool   `json:"on_hold"               jsonschema:"whether the item is on hold"`
	HoldReason    string `json:"hold_reason,omitempty" jsonschema:"why the item is on hold"`
	TotalHoldDays int    `json:"total_hold_days"       jsonschema:"days spent on hold in completed holds"`
	ActualHours   int    `json:"actual_hours"          jsonschema:"logged minutes rounded up to hours"`
}

func toEntryView(e domain.TimeEntry) EntryView {
	v := EntryView{
		ID:          e.ID,
		ItemID:      e.ItemID,
		Description: e.Description,
		StartedAt:   e.StartedAt.Format(time.RFC3339),
		Running:     e.IsRunning,
		Billable:    e.IsBillable,
	}
	if e.EndedAt != nil {
		v.EndedAt = e.EndedAt.Format(time.RFC3339)
	}
	if e.DurationMinutes != nil {
		v.DurationMinutes = *e.DurationMinutes
	}
	return v
}

func toItemView(it domain.WorkItem) ItemView {
	v := ItemView{
		ID:            it.ID,
		Name:          it.Name,
		Stage:         string(it.Stage),
		Position:      it.StagePosition,
		Priority:      string(it.Priority),
		OnHold:        it.IsOnHold,
		TotalHoldDays: it.TotalHoldDays,
		ActualHours:   it.ActualHours,
	}
	if it.HoldReason != nil {
		v.HoldReason = *it.HoldReason
	}
	return v
}

// --- Timer tools ---

type StartTimerInput struct {
	ItemID      string `json:"item_id"               jsonschema:"work item to time"`
	Description string `json:"description,omitempty" jsonschema:"what is being worked on"`
}

type EntryOutput struct {
	Entry EntryView `json:"entry" jsonschema:"the affected time entry"`
}

func (t tools) handleStartTimer(ctx context.Context, _ *mcp.CallToolRequest, input StartTimerInput) (*mcp.CallToolResult, EntryOutput, error) {
	if input.ItemID == "" {
		return nil, EntryOutput{}, errors.New("item_id is required")
	}
	entry, err := t.engine.StartTimer(ctx, input.ItemID, input.Description, t.actor)
	if err != nil {
		return nil, EntryOutput{}, fmt.Errorf("starting timer: %w", err)
	}
	return nil, EntryOutput{Entry: toEntryView(entry)}, nil
}

type StopTimerInput struct {
	EntryID string `json:"entry_id,omitempty" jsonschema:"entry to stop; defaults to the running timer"`
}

func (t tools) handleStopTimer(ctx context.Context, _ *mcp.CallToolRequest, input StopTimerInput) (*mcp.CallToolResult, EntryOutput, error) {
	id := input.EntryID
	if id == "" {
		running, err := t.engine.GetRunningEntry(ctx)
		if err != nil {
			return nil, EntryOutput{}, fmt.Errorf("reading running timer: %w", err)
		}
		if running == nil {
			return nil, EntryOutput{}, errors.New("no timer is running")
		}
		id = running.ID
	}
	entry, err := t.engine.StopTimer(ctx, id, t.actor)
	if err != nil {
		return nil, EntryOutput{}, fmt.Errorf("stopping timer: %w", err)
	}
	return nil, EntryOutput{Entry: toEntryView(entry)}, nil
}

type RunningTimerInput struct{}

type RunningTimerOutput struct {
	Running bool       `json:"running"         jsonschema:"whether a timer is running"`
	Entry   *EntryView `json:"entry,omitempty" jsonschema:"the running entry"`
}

func (t tools) handleRunningTimer(ctx context.Context, _ *mcp.CallToolRequest, _ RunningTimerInput) (*mcp.CallToolResult, RunningTimerOutput, error) {
	entry, err := t.engine.GetRunningEntry(ctx)
	if err != nil {
		return nil, RunningTimerOutput{}, fmt.Errorf("reading running timer: %w", err)
	}
	if entry == nil {
		return nil, RunningTimerOutput{}, nil
	}
	v := toEntryView(*entry)
	return nil, RunningTimerOutput{Running: true, Entry: &v}, nil
}

type LogTimeInput struct {
	ItemID          string `json:"item_id"               jsonschema:"work item the time was spent on"`
	DurationMinutes int    `json:"duration_minutes"      jsonschema:"whole minutes, zero or more"`
	Description     string `json:"description,omitempty" jsonschema:"what the time was spent on"`
	NonBillable     bool   `json:"non_billable,omitempty" jsonschema:"record the time as non-billable"`
}

func (t tools) handleLogTime(ctx context.Context, _ *mcp.CallToolRequest, input LogTimeInput) (*mcp.CallToolResult, EntryOutput, error) {
	billable := !input.NonBillable
	entry, err := t.engine.AddManualEntry(ctx, engine.ManualEntryOptions{
		ItemID:          input.ItemID,
		DurationMinutes: input.DurationMinutes,
		Description:     input.Description,
		Billable:        &billable,
		ActorID:         t.actor,
	})
	if err != nil {
		return nil, EntryOutput{}, fmt.Errorf("logging time: %w", err)
	}
	return nil, EntryOutput{Entry: toEntryView(entry)}, nil
}

// --- Pipeline tools ---

type ListItemsInput struct {
	Stage string `json:"stage,omitempty" jsonschema:"only items in this stage"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of items"`
}

type ListItemsOutput struct {
	Count int        `json:"count" jsonschema:"number of items returned"`
	Items []ItemView `json:"items" jsonschema:"items in pipeline order"`
}

func (t tools) handleListItems(ctx context.Context, _ *mcp.CallToolRequest, input ListItemsInput) (*mcp.CallToolResult, ListItemsOutput, error) {
	f := repo.ItemFilters{Limit: input.Limit}
	if input.Stage != "" {
		st, err := engine.ParseStage(input.Stage)
		if err != nil {
			return nil, ListItemsOutput{}, err
		}
		f.Stage = st
	}
	items, err := t.engine.ListItems(ctx, f)
	if err != nil {
		return nil, ListItemsOutput{}, fmt.Errorf("listing items: %w", err)
	}
	out := ListItemsOutput{Count: len(items), Items: make([]ItemView, 0, len(items))}
	for _, it := range items {
		out.Items = append(out.Items, toItemView(it))
	}
	return nil, out, nil
}

type MoveStageInput struct {
	ItemID   string `json:"item_id"            jsonschema:"work item to move"`
	Stage    string `json:"stage"              jsonschema:"target stage, e.g. IN_DEVELOPMENT"`
	Position int    `json:"position,omitempty" jsonschema:"position within the target stage (default 0)"`
}

type ItemOutput struct {
	Item ItemView `json:"item" jsonschema:"the updated work item"`
}

func (t tools) handleMoveStage(ctx context.Context, _ *mcp.CallToolRequest, input MoveStageInput) (*mcp.CallToolResult, ItemOutput, error) {
	st, err := engine.ParseStage(input.Stage)
	if err != nil {
		return nil, ItemOutput{}, err
	}
	it, err := t.engine.MoveToStage(ctx, input.ItemID, st, input.Position, t.actor)
	if err != nil {
		return nil, ItemOutput{}, fmt.Errorf("moving item: %w", err)
	}
	return nil, ItemOutput{Item: toItemView(it)}, nil
}

type SetHoldInput struct {
	ItemID string `json:"item_id"          jsonschema:"work item to hold or resume"`
	OnHold bool   `json:"on_hold"          jsonschema:"true to hold, false to resume"`
	Reason string `json:"reason,omitempty" jsonschema:"why the item is blocked"`
}

func (t tools) handleSetHold(ctx context.Context, _ *mcp.CallToolRequest, input SetHoldInput) (*mcp.CallToolResult, ItemOutput, error) {
	it, err := t.engine.SetHold(ctx, input.ItemID, input.OnHold, input.Reason, t.actor)
	if err != nil {
		return nil, ItemOutput{}, fmt.Errorf("setting hold: %w", err)
	}
	return nil, ItemOutput{Item: toItemView(it)}, nil
}

// --- Report tools ---

type ItemStatsInput struct {
	ItemID string `json:"item_id" jsonschema:"work item ID"`
}

type ItemStatsOutput struct {
	TotalMinutes    int     `json:"total_minutes"    jsonschema:"minutes across completed entries"`
	BillableMinutes int     `json:"billable_minutes" jsonschema:"minutes across billable completed entries"`
	BillableAmount  float64 `json:"billable_amount"  jsonschema:"billable minutes priced at each entry's rate snapshot"`
	EntriesCount    int     `json:"entries_count"    jsonschema:"number of completed entries"`
	ActualHours     int     `json:"actual_hours"     jsonschema:"total minutes rounded up to hours"`
}

func (t tools) handleItemStats(ctx context.Context, _ *mcp.CallToolRequest, input ItemStatsInput) (*mcp.CallToolResult, ItemStatsOutput, error) {
	s, err := t.engine.TimeStats(ctx, input.ItemID)
	if err != nil {
		return nil, ItemStatsOutput{}, fmt.Errorf("reading stats: %w", err)
	}
	return nil, ItemStatsOutput{
		TotalMinutes:    s.TotalMinutes,
		BillableMinutes: s.BillableMinutes,
		BillableAmount:  s.BillableAmount,
		EntriesCount:    s.EntriesCount,
		ActualHours:     s.ActualHours,
	}, nil
}

type AttentionInput struct{}

type AttentionItem struct {
	ItemID      string `json:"item_id"       jsonschema:"work item ID"`
	Name        string `json:"name"          jsonschema:"work item name"`
	Stage       string `json:"stage"         jsonschema:"current stage"`
	DaysInStage int    `json:"days_in_stage" jsonschema:"whole days since the item entered its stage"`
	Level       string `json:"level"         jsonschema:"NONE, WARNING or DANGER"`
}

type HeldView struct {
	ItemID   string `json:"item_id"          jsonschema:"work item ID"`
	Name     string `json:"name"             jsonschema:"work item name"`
	HoldDays int    `json:"hold_days"        jsonschema:"days on the current hold"`
	Reason   string `json:"reason,omitempty" jsonschema:"hold reason"`
}

type AttentionOutput struct {
	GeneratedAt string          `json:"generated_at" jsonschema:"report timestamp"`
	Warning     int             `json:"warning"      jsonschema:"items at WARNING"`
	Danger      int             `json:"danger"       jsonschema:"items at DANGER"`
	Items       []AttentionItem `json:"items"        jsonschema:"active items, longest in stage first"`
	OnHold      []HeldView      `json:"on_hold"      jsonschema:"items currently on hold"`
}

func (t tools) handleAttention(ctx context.Context, _ *mcp.CallToolRequest, _ AttentionInput) (*mcp.CallToolResult, AttentionOutput, error) {
	rep, err := t.engine.AttentionReport(ctx)
	if err != nil {
		return nil, AttentionOutput{}, fmt.Errorf("building attention report: %w", err)
	}
	out := AttentionOutput{
		GeneratedAt: rep.GeneratedAt.Format(time.RFC3339),
		Warning:     rep.Warning,
		Danger:      rep.Danger,
		Items:       make([]AttentionItem, 0, len(rep.Items)),
		OnHold:      make([]HeldView, 0, len(rep.OnHold)),
	}
	for _, st := range rep.Items {
		out.Items = append(out.Items, AttentionItem{
			ItemID:      st.Item.ID,
			Name:        st.Item.Name,
			Stage:       string(st.Item.Stage),
			DaysInStage: st.DaysInStage,
			Level:       string(st.Level),
		})
	}
	for _, h := range rep.OnHold {
		out.OnHold = append(out.OnHold, HeldView{
			ItemID:   h.Item.ID,
			Name:     h.Item.Name,
			HoldDays: h.HoldDays,
			Reason:   h.Reason,
		})
	}
	return nil, out, nil
}
