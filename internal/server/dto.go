package server

import (
	"stageline/internal/attention"
	"stageline/internal/domain"
)

// Request payloads

type CreateItemRequest struct {
	Name           string   `json:"name" minLength:"1"`
	Description    string   `json:"description,omitempty"`
	ClientID       string   `json:"client_id,omitempty"`
	Priority       string   `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH,URGENT"`
	HourlyRate     *float64 `json:"hourly_rate,omitempty"`
	EstimatedHours *int     `json:"estimated_hours,omitempty"`
}

// UpdateItemRequest fields are optional; hourly_rate and estimated_hours
// accept an explicit null to clear the value.
type UpdateItemRequest struct {
	Name           *string  `json:"name,omitempty"`
	Description    *string  `json:"description,omitempty"`
	ClientID       *string  `json:"client_id,omitempty"`
	HourlyRate     *float64 `json:"hourly_rate,omitempty" nullable:"true"`
	EstimatedHours *int     `json:"estimated_hours,omitempty" nullable:"true"`
}

type MoveStageRequest struct {
	Stage    string `json:"stage"`
	Position int    `json:"position"`
}

type SetHoldRequest struct {
	OnHold bool   `json:"on_hold"`
	Reason string `json:"reason,omitempty"`
}

type SetPriorityRequest struct {
	Priority string `json:"priority"`
}

type StartTimerRequest struct {
	Description string `json:"description,omitempty"`
}

type ManualEntryRequest struct {
	DurationMinutes int    `json:"duration_minutes"`
	Description     string `json:"description,omitempty"`
	Billable        *bool  `json:"billable,omitempty"`
}

type UpdateEntryRequest struct {
	Description *string `json:"description,omitempty"`
	Billable    *bool   `json:"billable,omitempty"`
}

type CreateClientRequest struct {
	Name    string `json:"name" minLength:"1"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
}

type AddNoteRequest struct {
	Content string `json:"content" minLength:"1"`
}

type CreateTagRequest struct {
	Name  string `json:"name" minLength:"1"`
	Color string `json:"color,omitempty" doc:"#rrggbb, defaults to #6366f1"`
}

// Responses

type ItemList struct {
	Items []domain.WorkItem `json:"items"`
}

type ItemDetail struct {
	Item        domain.WorkItem `json:"item"`
	DaysInStage int             `json:"days_in_stage"`
	Level       attention.Level `json:"level"`
}

type HistoryList struct {
	Items []domain.StageHistoryEntry `json:"items"`
}

type EntryList struct {
	Items []domain.TimeEntry `json:"items"`
}

type RunningTimer struct {
	Running bool              `json:"running"`
	Entry   *domain.TimeEntry `json:"entry,omitempty"`
}

type ReconcileResult struct {
	Changed int `json:"changed"`
}

type ClientList struct {
	Items []domain.Client `json:"items"`
}

type NoteList struct {
	Items []domain.Note `json:"items"`
}

type TagList struct {
	Items []domain.Tag `json:"items"`
}

type EventList struct {
	Items []domain.AuditEvent `json:"items"`
}

func nonNilItems(items []domain.WorkItem) []domain.WorkItem {
	if items == nil {
		return []domain.WorkItem{}
	}
	return items
}

func nonNilEntries(items []domain.TimeEntry) []domain.TimeEntry {
	if items == nil {
		return []domain.TimeEntry{}
	}
	return items
}
