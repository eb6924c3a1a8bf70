package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"ticketline/internal/domain"
	"ticketline/internal/engine"
	"ticketline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine    engine.Engine
	BasePath  string
	Auth      AuthConfig
	RateLimit RateLimit
	Logger    *slog.Logger
	// Now is the clock handed to the engine. Defaults to time.Now.
	Now       func() time.Time
}

// RateLimit bounds requests per caller. A zero RPS disables limiting.
type RateLimit struct {
	RPS   float64
	Burst int
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"approve_work ticket 7: not submitted"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"ticket_id\":7}"`
}

type requestIDKey struct{}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Ticketline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(newAuthMiddleware(basePath, credentials{cfg: cfg.Auth, repo: cfg.Engine.Repo, now: now}))
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = int(cfg.RateLimit.RPS) + 1
		}
		router.Use(newCallerLimiter(cfg.RateLimit.RPS, burst).Middleware)
	}
	hcfg := huma.DefaultConfig("Ticketline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, cfg.Engine)
	registerTickets(group, cfg.Engine, now)
	registerTicketActions(group, cfg.Engine, now)
	registerUserTickets(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerRoles(group, cfg.Engine, now)
	registerMe(group, cfg.Engine)
	if cfg.Auth.EnableDevLogin {
		registerDevAuth(group, cfg.Auth, now)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		details := map[string]any{"op": string(ee.Op)}
		if ee.TicketID > 0 {
			details["ticket_id"] = ee.TicketID
		}
		switch {
		case errors.Is(ee, engine.ErrValidation):
			return newAPIError(http.StatusBadRequest, "bad_request", ee.Error(), details)
		case errors.Is(ee, engine.ErrUnauthorized):
			return newAPIError(http.StatusForbidden, "forbidden", ee.Error(), details)
		case errors.Is(ee, engine.ErrState):
			return newAPIError(http.StatusConflict, "invalid_state", ee.Error(), details)
		case errors.Is(ee, engine.ErrNotFound):
			return newAPIError(http.StatusNotFound, "not_found", ee.Error(), details)
		case errors.Is(ee, engine.ErrResource):
			return newAPIError(http.StatusConflict, "resource_unavailable", ee.Error(), details)
		}
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// callFromContext builds the engine call for the authenticated principal.
func callFromContext(ctx context.Context, now func() time.Time) (engine.Call, huma.StatusError) {
	actor, err := actorIDFromContext(ctx)
	if err != nil {
		return engine.Call{}, err
	}
	return engine.Call{Caller: actor, Now: now().UTC()}, nil
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", requestIDFromContext(r.Context()),
			}
			if status >= http.StatusInternalServerError {
				logger.Error("request", attrs...)
				return
			}
			logger.Info("request", attrs...)
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			decorateSpec(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

// decorateSpec adds the error envelope as every operation's default response
// and marks all operations except the public ones as requiring credentials.
func decorateSpec(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{Type: "apiKey", In: "header", Name: "X-Api-Key"}
	authenticated := []map[string][]string{{"bearerAuth": {}}, {"apiKeyAuth": {}}}
	oas.Security = authenticated

	errorSchema := &huma.Schema{Ref: "#/components/schemas/ApiError"}
	if oas.Components.Schemas != nil {
		errorSchema = oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	}
	errorResponse := &huma.Response{
		Description: "Error envelope",
		Content:     map[string]*huma.MediaType{"application/json": {Schema: errorSchema}},
	}
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range pathOperations(item) {
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = errorResponse
			if public[route] {
				op.Security = []map[string][]string{}
			} else {
				op.Security = authenticated
			}
		}
	}
}

func pathOperations(item *huma.PathItem) []*huma.Operation {
	var ops []*huma.Operation
	for _, op := range []*huma.Operation{
		item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
	} {
		if op != nil {
			ops = append(ops, op)
		}
	}
	return ops
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Ticketline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		counts, err := e.CountTickets(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{"status": "ok", "tickets": counts}}, nil
	})
}

type ticketOutput struct {
	Body TicketResponse `json:"body"`
}

type escrowOutput struct {
	Body EscrowResponse `json:"body"`
}

func registerTickets(api huma.API, e engine.Engine, now func() time.Time) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-ticket",
		Method:        http.MethodPost,
		Path:          "/tickets",
		Summary:       "Create a ticket and fund its escrow",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateTicketRequest `json:"body"`
	}) (*ticketOutput, error) {
		call, authErr := callFromContext(ctx, now)
		if authErr != nil {
			return nil, authErr
		}
		amount, err := domain.ParseAmount(input.Body.PaymentAmount)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"payment_amount": input.Body.PaymentAmount})
		}
		t, err := e.CreateTicket(ctx, call, engine.TicketCreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Amount:      amount,
			Deadline:    input.Body.Deadline,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &ticketOutput{Body: ticketResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tickets",
		Method:      http.MethodGet,
		Path:        "/tickets",
		Summary:     "List tickets, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status" enum:"open,assigned,in_progress,submitted,completed,disputed,resolved,cancelled"`
		Client     string `query:"client"`
		Freelancer string `query:"freelancer"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedTickets `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursor, cursorErr := parseCursor(input.Cursor)
		if cursorErr != nil {
			return nil, cursorErr
		}
		items, err := e.ListTickets(ctx, repo.TicketFilters{
			Status:     input.Status,
			Client:     input.Client,
			Freelancer: input.Freelancer,
			Limit:      limit + 1,
			Cursor:     uint64(cursor),
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTickets{}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatUint(items[limit-1].ID, 10)
		}
		resp.Items = mapTickets(items)
		return &struct {
			Body paginatedTickets `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ticket",
		Method:      http.MethodGet,
		Path:        "/tickets/{id}",
		Summary:     "Get ticket",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID uint64 `path:"id"`
	}) (*ticketOutput, error) {
		t, err := e.GetTicket(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &ticketOutput{Body: ticketResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-escrow",
		Method:      http.MethodGet,
		Path:        "/tickets/{id}/escrow",
		Summary:     "Get the escrow held against a ticket",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID uint64 `path:"id"`
	}) (*escrowOutput, error) {
		esc, err := e.GetEscrow(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &escrowOutput{Body: escrowResponse(esc)}, nil
	})
}

var actionErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
}

type ticketActionFunc[I any] func(ctx context.Context, call engine.Call, input *I) (domain.Ticket, error)

// registerTicketAction registers POST /tickets/{id}/<name> for a lifecycle
// operation that answers with the updated ticket.
func registerTicketAction[I any](api huma.API, now func() time.Time, name, summary string, run ticketActionFunc[I]) {
	huma.Register(api, huma.Operation{
		OperationID: name + "-ticket",
		Method:      http.MethodPost,
		Path:        "/tickets/{id}/" + name,
		Summary:     summary,
		Errors:      actionErrors,
	}, func(ctx context.Context, input *I) (*ticketOutput, error) {
		call, authErr := callFromContext(ctx, now)
		if authErr != nil {
			return nil, authErr
		}
		t, err := run(ctx, call, input)
		if err != nil {
			return nil, handleError(err)
		}
		return &ticketOutput{Body: ticketResponse(t)}, nil
	})
}

type ticketIDInput struct {
	ID uint64 `path:"id"`
}

type assignInput struct {
	ID   uint64              `path:"id"`
	Body AssignTicketRequest `json:"body"`
}

type submitInput struct {
	ID   uint64            `path:"id"`
	Body SubmitWorkRequest `json:"body"`
}

type rejectInput struct {
	ID   uint64            `path:"id"`
	Body RejectWorkRequest `json:"body"`
}

type disputeInput struct {
	ID   uint64               `path:"id"`
	Body DisputeTicketRequest `json:"body"`
}

type resolveInput struct {
	ID   uint64                `path:"id"`
	Body ResolveDisputeRequest `json:"body"`
}

func registerTicketActions(api huma.API, e engine.Engine, now func() time.Time) {
	registerTicketAction(api, now, "assign", "Assign a freelancer to an open ticket",
		func(ctx context.Context, call engine.Call, in *assignInput) (domain.Ticket, error) {
			return e.AssignTicket(ctx, call, in.ID, in.Body.Freelancer)
		})
	registerTicketAction(api, now, "start", "Start work on an assigned ticket",
		func(ctx context.Context, call engine.Call, in *ticketIDInput) (domain.Ticket, error) {
			return e.StartWork(ctx, call, in.ID)
		})
	registerTicketAction(api, now, "submit", "Submit work for review",
		func(ctx context.Context, call engine.Call, in *submitInput) (domain.Ticket, error) {
			return e.SubmitWork(ctx, call, in.ID, in.Body.SubmissionURI)
		})
	registerTicketAction(api, now, "approve", "Approve submitted work",
		func(ctx context.Context, call engine.Call, in *ticketIDInput) (domain.Ticket, error) {
			return e.ApproveWork(ctx, call, in.ID)
		})
	registerTicketAction(api, now, "reject", "Reject submitted work",
		func(ctx context.Context, call engine.Call, in *rejectInput) (domain.Ticket, error) {
			return e.RejectWork(ctx, call, in.ID, in.Body.Reason)
		})
	registerTicketAction(api, now, "dispute", "Raise a dispute",
		func(ctx context.Context, call engine.Call, in *disputeInput) (domain.Ticket, error) {
			return e.DisputeTicket(ctx, call, in.ID, in.Body.Reason)
		})
	registerTicketAction(api, now, "resolve", "Resolve a dispute",
		func(ctx context.Context, call engine.Call, in *resolveInput) (domain.Ticket, error) {
			return e.ResolveDispute(ctx, call, in.ID, in.Body.Resolution, in.Body.Note)
		})
	registerTicketAction(api, now, "cancel", "Cancel a ticket",
		func(ctx context.Context, call engine.Call, in *ticketIDInput) (domain.Ticket, error) {
			return e.CancelTicket(ctx, call, in.ID)
		})

	huma.Register(api, huma.Operation{
		OperationID: "withdraw-ticket",
		Method:      http.MethodPost,
		Path:        "/tickets/{id}/withdraw",
		Summary:     "Withdraw the escrowed payment",
		Errors:      actionErrors,
	}, func(ctx context.Context, input *ticketIDInput) (*escrowOutput, error) {
		call, authErr := callFromContext(ctx, now)
		if authErr != nil {
			return nil, authErr
		}
		esc, err := e.WithdrawPayment(ctx, call, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &escrowOutput{Body: escrowResponse(esc)}, nil
	})
}

func registerUserTickets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "user-tickets",
		Method:      http.MethodGet,
		Path:        "/users/{user}/tickets",
		Summary:     "Ticket ids a user holds as client or freelancer",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		User string `path:"user"`
		Role string `query:"role" enum:"client,freelancer" default:"client"`
	}) (*struct {
		Body UserTicketsResponse `json:"body"`
	}, error) {
		role, err := domain.ParseIndexRole(input.Role)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		ids, err := e.TicketsFor(ctx, input.User, role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UserTicketsResponse `json:"body"`
		}{Body: UserTicketsResponse{ActorID: input.User, Role: string(role), TicketIDs: ids}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"ticket,escrow,role"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursor, cursorErr := parseCursor(input.Cursor)
		if cursorErr != nil {
			return nil, cursorErr
		}
		items, err := e.ListEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      limit + 1,
			Cursor:     cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRoles(api huma.API, e engine.Engine, now func() time.Time) {
	huma.Register(api, huma.Operation{
		OperationID: "list-role-grants",
		Method:      http.MethodGet,
		Path:        "/roles",
		Summary:     "List role grants",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Role string `query:"role" enum:"admin,resolver"`
	}) (*struct {
		Body []RoleGrantResponse `json:"body"`
	}, error) {
		grants, err := e.ListRoleGrants(ctx, domain.Role(input.Role))
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]RoleGrantResponse, 0, len(grants))
		for _, g := range grants {
			out = append(out, roleGrantResponse(g))
		}
		return &struct {
			Body []RoleGrantResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "actor-roles",
		Method:      http.MethodGet,
		Path:        "/roles/{actor}",
		Summary:     "Roles held by an actor",
	}, func(ctx context.Context, input *struct {
		Actor string `path:"actor"`
	}) (*struct {
		Body RolesResponse `json:"body"`
	}, error) {
		roles, err := e.ActorRoles(ctx, input.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RolesResponse `json:"body"`
		}{Body: RolesResponse{ActorID: input.Actor, Roles: roleNames(roles)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "grant-role",
		Method:        http.MethodPost,
		Path:          "/roles",
		Summary:       "Grant a role (admin only)",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body GrantRoleRequest `json:"body"`
	}) (*struct {
		Body RoleGrantResponse `json:"body"`
	}, error) {
		call, authErr := callFromContext(ctx, now)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.GrantRole(ctx, call, input.Body.ActorID, domain.Role(input.Body.Role))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RoleGrantResponse `json:"body"`
		}{Body: roleGrantResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-role",
		Method:        http.MethodDelete,
		Path:          "/roles/{actor}/{role}",
		Summary:       "Revoke a role (admin only)",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Actor string `path:"actor"`
		Role  string `path:"role" enum:"admin,resolver"`
	}) (*struct{}, error) {
		call, authErr := callFromContext(ctx, now)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeRole(ctx, call, input.Actor, domain.Role(input.Role)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

type WhoAmIResponse struct {
	ActorID string   `json:"actor_id"`
	Source  string   `json:"source"`
	Roles   []string `json:"roles"`
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		roles, err := e.ActorRoles(ctx, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID: principal.ActorID,
			Source:  principal.Source,
			Roles:   roleNames(roles),
		}}, nil
	})
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id" minLength:"1"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func registerDevAuth(api huma.API, authCfg AuthConfig, now func() time.Time) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, actor, time.Hour, now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCursor(cursor string) (int64, huma.StatusError) {
	if cursor == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || parsed <= 0 {
		return 0, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": cursor})
	}
	return parsed, nil
}

func roleNames(roles []domain.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}
