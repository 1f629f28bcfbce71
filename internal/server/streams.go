package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"streamline/internal/domain"
	"streamline/internal/engine"
)

func registerStreams(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-stream",
		Method:        http.MethodPost,
		Path:          "/guilds/{guild_id}/streams",
		Summary:       "Register a stream",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		GuildID string              `path:"guild_id"`
		Body    CreateStreamRequest `json:"body"`
	}) (*struct {
		Body StreamResponse `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		days := 0
		if input.Body.DueInDays != nil {
			days = *input.Body.DueInDays
		} else if e.Config != nil {
			days = e.Config.Streams.DefaultDueDays
		}
		s, err := e.Create(ctx, engine.CreateInput{
			Subject:   input.Body.Subject,
			OwnerID:   strValue(input.Body.OwnerID),
			CallerID:  p.ActorID,
			SponsorID: strValue(input.Body.SponsorID),
			DueInDays: days,
			Scope:     input.GuildID,
			Category:  strValue(input.Body.Category),
			Link:      strValue(input.Body.Link),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StreamResponse `json:"body"`
		}{Body: streamResponse(engine.View(s, s.CreatedAt))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/streams",
		Summary:     "List streams of a guild",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		GuildID string `path:"guild_id"`
		Status  string `query:"status" enum:"active,completed"`
		OwnerID string `query:"owner_id"`
		Order   string `query:"order" enum:"created,due" default:"created"`
		Limit   int    `query:"limit"`
	}) (*struct {
		Body StreamListResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.List(ctx, engine.ListFilter{
			Scope:      input.GuildID,
			Status:     domain.Status(input.Status),
			OwnerID:    input.OwnerID,
			OrderByDue: input.Order == "due",
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := StreamListResponse{Items: make([]StreamResponse, 0, len(items))}
		for _, v := range items {
			resp.Items = append(resp.Items, streamResponse(v))
		}
		return &struct {
			Body StreamListResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/streams/{public_id}",
		Summary:     "Get a stream",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GuildID  string `path:"guild_id"`
		PublicID string `path:"public_id"`
	}) (*struct {
		Body StreamResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		v, err := e.Get(ctx, input.GuildID, input.PublicID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StreamResponse `json:"body"`
		}{Body: streamResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-stream",
		Method:      http.MethodPost,
		Path:        "/guilds/{guild_id}/streams/{public_id}/complete",
		Summary:     "Mark a stream completed",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		GuildID  string `path:"guild_id"`
		PublicID string `path:"public_id"`
	}) (*struct {
		Body StreamResponse `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.Complete(ctx, engine.CompleteInput{
			Scope:    input.GuildID,
			PublicID: input.PublicID,
			CallerID: p.ActorID,
			Elevated: p.Has(PermModerate),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StreamResponse `json:"body"`
		}{Body: streamResponse(engine.View(s, s.UpdatedAt))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "wipe-streams",
		Method:      http.MethodDelete,
		Path:        "/guilds/{guild_id}/streams",
		Summary:     "Delete every stream of a guild",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		GuildID string `path:"guild_id"`
	}) (*struct {
		Body RemovedResponse `json:"body"`
	}, error) {
		p, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		removed, err := e.Wipe(ctx, engine.WipeInput{Scope: input.GuildID, CallerID: p.ActorID, Elevated: p.Has(PermModerate)})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RemovedResponse `json:"body"`
		}{Body: RemovedResponse{Count: len(removed), Removed: removed}}, nil
	})
}

func registerMaintenance(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "retention-sweep",
		Method:      http.MethodPost,
		Path:        "/maintenance/sweep",
		Summary:     "Run the retention sweep now",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body *SweepRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body RemovedResponse `json:"body"`
	}, error) {
		p, err := requireAdmin(ctx)
		if err != nil {
			return nil, err
		}
		opts := engine.SweepOptions{ActorID: p.ActorID}
		if b := input.Body; b != nil {
			opts.Scope = b.Scope
			opts.Basis = b.Basis
			if b.WindowHours != nil {
				w := time.Duration(*b.WindowHours) * time.Hour
				opts.Window = &w
			}
		}
		res, serr := e.RetentionSweep(ctx, opts)
		if serr != nil {
			return nil, handleError(serr)
		}
		return &struct {
			Body RemovedResponse `json:"body"`
		}{Body: RemovedResponse{Count: res.Count, Removed: res.Removed}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reminder-scan",
		Method:      http.MethodPost,
		Path:        "/maintenance/remind",
		Summary:     "Run the due-tomorrow reminder scan now",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.ReminderReport `json:"body"`
	}, error) {
		if _, err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		report, err := e.RemindDueTomorrow(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ReminderReport `json:"body"`
		}{Body: report}, nil
	})
}

func requireAdmin(ctx context.Context) (Principal, huma.StatusError) {
	p, authErr := principalFromContext(ctx)
	if authErr != nil {
		return p, authErr
	}
	if !p.Has(PermAdmin) {
		return p, newAPIError(http.StatusForbidden, "forbidden", "permission "+PermAdmin+" required", map[string]any{"permission": PermAdmin})
	}
	return p, nil
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/guilds/{guild_id}/events",
		Summary:     "List recent audit events",
	}, func(ctx context.Context, input *struct {
		GuildID string `path:"guild_id"`
		Type    string `query:"type"`
		Limit   int    `query:"limit" default:"50"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListEvents(ctx, input.GuildID, input.Type, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		resp := EventListResponse{Items: make([]EventResponse, 0, len(items))}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: resp}, nil
	})
}
