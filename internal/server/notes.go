package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"stageline/internal/domain"
	"stageline/internal/engine"
)

func registerNotes(api huma.API, s *service) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID: "add-note",
		Method:      http.MethodPost,
		Path:        "/items/{item_id}/notes",
		Summary:     "Attach a note to an item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
		Body   AddNoteRequest
	}) (*struct {
		Body domain.Note `json:"body"`
	}, error) {
		n, err := e.AddNote(ctx, input.ItemID, input.Body.Content, actorID(ctx))
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body domain.Note `json:"body"`
		}{Body: n}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notes",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}/notes",
		Summary:     "An item's notes, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body NoteList `json:"body"`
	}, error) {
		notes, err := e.ListNotes(ctx, input.ItemID)
		if err != nil {
			return nil, s.handleError(err)
		}
		if notes == nil {
			notes = []domain.Note{}
		}
		return &struct {
			Body NoteList `json:"body"`
		}{Body: NoteList{Items: notes}}, nil
	})
}

func registerTags(api huma.API, s *service) {
	e := s.engine

	huma.Register(api, huma.Operation{
		OperationID: "create-tag",
		Method:      http.MethodPost,
		Path:        "/tags",
		Summary:     "Create a tag",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateTagRequest
	}) (*struct {
		Body domain.Tag `json:"body"`
	}, error) {
		tag, err := e.CreateTag(ctx, engine.TagCreateOptions{
			Name:    input.Body.Name,
			Color:   input.Body.Color,
			ActorID: actorID(ctx),
		})
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body domain.Tag `json:"body"`
		}{Body: tag}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tags",
		Method:      http.MethodGet,
		Path:        "/tags",
		Summary:     "All tags by name with their item counts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TagList `json:"body"`
	}, error) {
		tags, err := e.ListTags(ctx)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body TagList `json:"body"`
		}{Body: TagList{Items: nonNilTags(tags)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-item-tags",
		Method:      http.MethodGet,
		Path:        "/items/{item_id}/tags",
		Summary:     "Tags carried by an item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body TagList `json:"body"`
	}, error) {
		tags, err := e.ItemTags(ctx, input.ItemID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body TagList `json:"body"`
		}{Body: TagList{Items: nonNilTags(tags)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "tag-item",
		Method:        http.MethodPut,
		Path:          "/items/{item_id}/tags/{tag_id}",
		Summary:       "Tag an item",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
		TagID  string `path:"tag_id"`
	}) (*struct{}, error) {
		if err := e.TagItem(ctx, input.ItemID, input.TagID, actorID(ctx)); err != nil {
			return nil, s.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "untag-item",
		Method:        http.MethodDelete,
		Path:          "/items/{item_id}/tags/{tag_id}",
		Summary:       "Remove a tag from an item",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
		TagID  string `path:"tag_id"`
	}) (*struct{}, error) {
		if err := e.UntagItem(ctx, input.ItemID, input.TagID, actorID(ctx)); err != nil {
			return nil, s.handleError(err)
		}
		return &struct{}{}, nil
	})
}

func nonNilTags(tags []domain.Tag) []domain.Tag {
	if tags == nil {
		return []domain.Tag{}
	}
	return tags
}
