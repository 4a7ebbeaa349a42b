package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/repo"
)

type entryOutput struct {
	Body domain.TimeEntry `json:"body"`
}

func registerTime(api huma.API, s *service) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID: "start-timer",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/timer",
		Summary:     "Start a timer on an item, stopping any running timer",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
		Body   *StartTimerRequest
	}) (*entryOutput, error) {
		desc := ""
		if input.Body != nil {
			desc = input.Body.Description
		}
		entry, err := e.StartTimer(ctx, input.ItemID, desc, actorID(ctx))
		if err != nil {
			return nil, s.handleError(err)
		}
		return &entryOutput{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "running-timer",
		Method:      http.MethodGet,
		Path:        "/timer",
		Summary:     "Get the running timer, if any",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RunningTimer `json:"body"`
	}, error) {
		entry, err := e.GetRunningEntry(ctx)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body RunningTimer `json:"body"`
		}{Body: RunningTimer{Running: entry != nil, Entry: entry}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-timer",
		Method:      http.MethodPost,
		Path:        "/entries/{entry_id}/stop",
		Summary:     "Stop a running time entry",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EntryID string `path:"entry_id"`
	}) (*entryOutput, error) {
		entry, err := e.StopTimer(ctx, input.EntryID, actorID(ctx))
		if err != nil {
			return nil, s.handleError(err)
		}
		return &entryOutput{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-entry",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/entries",
		Summary:     "Log completed time on an item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
		Body   ManualEntryRequest
	}) (*entryOutput, error) {
		entry, err := e.AddManualEntry(ctx, engine.ManualEntryOptions{
			ItemID:          input.ItemID,
			DurationMinutes: input.Body.DurationMinutes,
			Description:     input.Body.Description,
			Billable:        input.Body.Billable,
			ActorID:         actorID(ctx),
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return &entryOutput{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "item-entries",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}/entries",
		Summary:     "List an item's time entries, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body EntryList `json:"body"`
	}, error) {
		entries, err := e.ListEntries(ctx, repo.EntryFilters{ItemID: input.ItemID, Limit: input.Limit})
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body EntryList `json:"body"`
		}{Body: EntryList{Items: nonNilEntries(entries)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recent-entries",
		Method:      http.MethodGet,
		Path:        "/entries",
		Summary:     "List recent time entries across all items",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body EntryList `json:"body"`
	}, error) {
		entries, err := e.ListEntries(ctx, repo.EntryFilters{Limit: normalizeLimit(input.Limit)})
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body EntryList `json:"body"`
		}{Body: EntryList{Items: nonNilEntries(entries)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-entry",
		Method:      http.MethodPatch,
		Path:        "/entries/{entry_id}",
		Summary:     "Edit an entry's description or billable flag",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EntryID string `path:"entry_id"`
		Body    UpdateEntryRequest
	}) (*entryOutput, error) {
		entry, err := e.UpdateEntry(ctx, engine.EntryUpdateOptions{
			ID:          input.EntryID,
			Description: input.Body.Description,
			Billable:    input.Body.Billable,
			ActorID:     actorID(ctx),
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return &entryOutput{Body: entry}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-entry",
		Method:        http.MethodDelete,
		Path:          "/entries/{entry_id}",
		Summary:       "Delete a time entry",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EntryID string `path:"entry_id"`
	}) (*struct{}, error) {
		if err := e.DeleteEntry(ctx, input.EntryID, actorID(ctx)); err != nil {
			return nil, s.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "item-stats",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}/stats",
		Summary:     "Time totals and billable amount for an item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body domain.TimeStats `json:"body"`
	}, error) {
		stats, err := e.TimeStats(ctx, input.ItemID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body domain.TimeStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reconcile-hours",
		Method:      http.MethodPost,
		Path:        "/reconcile",
		Summary:     "Re-derive actual hours for every item",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ReconcileResult `json:"body"`
	}, error) {
		n, err := e.ReconcileActualHours(ctx)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body ReconcileResult `json:"body"`
		}{Body: ReconcileResult{Changed: n}}, nil
	})
}
