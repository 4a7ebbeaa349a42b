package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"stageline/internal/attention"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/repo"
)

func registerClients(api huma.API, s *service) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID: "create-client",
		Method:      http.MethodPost,
		Path:        "/clients",
		Summary:     "Create a client",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateClientRequest
	}) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		c, err := e.CreateClient(ctx, engine.ClientCreateOptions{
			Name:    input.Body.Name,
			Email:   input.Body.Email,
			Company: input.Body.Company,
			ActorID: actorID(ctx),
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ClientList `json:"body"`
	}, error) {
		clients, err := e.ListClients(ctx)
		if err != nil {
			return nil, s.handleError(err)
		}
		if clients == nil {
			clients = []domain.Client{}
		}
		return &struct {
			Body ClientList `json:"body"`
		}{Body: ClientList{Items: clients}}, nil
	})
}

func registerReports(api huma.API, s *service) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID: "attention",
		Method:      http.MethodGet,
		Path:        "/attention",
		Summary:     "Items that have sat too long in their stage",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body attention.Report `json:"body"`
	}, error) {
		rep, err := e.AttentionReport(ctx)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body attention.Report `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent audit events, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ItemID string `query:"item_id"`
		Action string `query:"action"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body EventList `json:"body"`
	}, error) {
		evs, err := e.Activity(ctx, repo.EventFilters{
			ItemID: input.ItemID,
			Action: domain.Action(input.Action),
			Limit:  normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		if evs == nil {
			evs = []domain.AuditEvent{}
		}
		return &struct {
			Body EventList `json:"body"`
		}{Body: EventList{Items: evs}}, nil
	})
}
