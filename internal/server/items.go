package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/repo"
)

type itemOutput struct {
	Body domain.WorkItem `json:"body"`
}

func registerItems(api huma.API, s *service) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/items",
		Summary:     "List work items in pipeline order",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Stage    string `query:"stage"`
		OnHold   string `query:"on_hold" doc:"true or false"`
		ClientID string `query:"client_id"`
		Query    string `query:"q"`
		Limit    int    `query:"limit"`
	}) (*struct {
		Body ItemList `json:"body"`
	}, error) {
		f := repo.ItemFilters{ClientID: input.ClientID, Query: input.Query, Limit: input.Limit}
		if input.Stage != "" {
			st, err := engine.ParseStage(input.Stage)
			if err != nil {
				return nil, s.handleError(err)
			}
			f.Stage = st
		}
		if input.OnHold != "" {
			b, err := strconv.ParseBool(input.OnHold)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid on_hold", map[string]any{"on_hold": input.OnHold})
			}
			f.OnHold = &b
		}
		items, err := e.ListItems(ctx, f)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body ItemList `json:"body"`
		}{Body: ItemList{Items: nonNilItems(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-item",
		Method:      http.MethodPost,
		Path:        "/items",
		Summary:     "Create a work item in BACKLOG",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateItemRequest
	}) (*itemOutput, error) {
		opts := engine.ItemCreateOptions{
			Name:           input.Body.Name,
			Description:    input.Body.Description,
			ClientID:       input.Body.ClientID,
			HourlyRate:     input.Body.HourlyRate,
			EstimatedHours: input.Body.EstimatedHours,
			ActorID:        actorID(ctx),
		}
		if input.Body.Priority != "" {
			p, err := engine.ParsePriority(input.Body.Priority)
			if err != nil {
				return nil, s.handleError(err)
			}
			opts.Priority = p
		}
		it, err := e.CreateItem(ctx, opts)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}",
		Summary:     "Get a work item with its attention state",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body ItemDetail `json:"body"`
	}, error) {
		st, err := e.ItemAttention(ctx, input.ItemID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body ItemDetail `json:"body"`
		}{Body: ItemDetail{Item: st.Item, DaysInStage: st.DaysInStage, Level: st.Level}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-item",
		Method:      http.MethodPatch,
		Path:        "/items/{item_id}",
		Summary:     "Edit ordinary item fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
		Body   UpdateItemRequest
	}) (*itemOutput, error) {
		raw := rawBodyMap(ctx)
		opts := engine.ItemUpdateOptions{
			ID:             input.ItemID,
			Name:           input.Body.Name,
			Description:    input.Body.Description,
			ClientID:       input.Body.ClientID,
			HourlyRate:     input.Body.HourlyRate,
			EstimatedHours: input.Body.EstimatedHours,
			ActorID:        actorID(ctx),
		}
		if v, ok := raw["hourly_rate"]; ok && isNullRaw(v) {
			opts.ClearHourlyRate = true
		}
		if v, ok := raw["estimated_hours"]; ok && isNullRaw(v) {
			opts.ClearEstimatedHours = true
		}
		it, err := e.UpdateItem(ctx, opts)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-item",
		Method:        http.MethodDelete,
		Path:          "/items/{item_id}",
		Summary:       "Delete an item with its history and time entries",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct{}, error) {
		if err := e.DeleteItem(ctx, input.ItemID, actorID(ctx)); err != nil {
			return nil, s.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-priority",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/priority",
		Summary:     "Change an item's priority",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
		Body   SetPriorityRequest
	}) (*itemOutput, error) {
		p, err := engine.ParsePriority(input.Body.Priority)
		if err != nil {
			return nil, s.handleError(err)
		}
		it, err := e.SetPriority(ctx, input.ItemID, p, actorID(ctx))
		if err != nil {
			return nil, s.handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})
}

func registerPipeline(api huma.API, s *service) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID: "move-stage",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/stage",
		Summary:     "Move an item to a stage and position",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
		Body   MoveStageRequest
	}) (*itemOutput, error) {
		st, err := engine.ParseStage(input.Body.Stage)
		if err != nil {
			return nil, s.handleError(err)
		}
		it, err := e.MoveToStage(ctx, input.ItemID, st, input.Body.Position, actorID(ctx))
		if err != nil {
			return nil, s.handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-hold",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/hold",
		Summary:     "Put an item on hold or resume it",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
		Body   SetHoldRequest
	}) (*itemOutput, error) {
		it, err := e.SetHold(ctx, input.ItemID, input.Body.OnHold, input.Body.Reason, actorID(ctx))
		if err != nil {
			return nil, s.handleError(err)
		}
		return &itemOutput{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "item-history",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}/history",
		Summary:     "List an item's stage transitions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body HistoryList `json:"body"`
	}, error) {
		hist, err := e.History(ctx, input.ItemID)
		if err != nil {
			return nil, s.handleError(err)
		}
		if hist == nil {
			hist = []domain.StageHistoryEntry{}
		}
		return &struct {
			Body HistoryList `json:"body"`
		}{Body: HistoryList{Items: hist}}, nil
	})
}
