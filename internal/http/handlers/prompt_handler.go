// Prompt HTTP handlers.
//
// This file exposes REST endpoints for the caller's prompts:
//   - GET    /prompts          (list, newest first, ETag support)
//   - GET    /prompts/search   (rank own prompts against a query)
//   - GET    /prompts/{id}     (read one)
//   - POST   /prompts          (create, Idempotency-Key aware)
//   - PUT    /prompts/{id}     (replace name, description and content)
//   - DELETE /prompts/{id}     (delete, returns the removed record)
//
// Handlers are transport-thin: they validate input, call PromptService, and
// translate its closed error set into HTTP responses. A prompt that does not
// exist and a prompt owned by someone else both yield 404.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// create exists for (user, key), the handler returns that prompt with 200 and
// sets `Idempotent-Replayed: true`.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-prompt-manager/internal/domain"
	"github.com/tbourn/go-prompt-manager/internal/http/middleware"
	"github.com/tbourn/go-prompt-manager/internal/search"
	"github.com/tbourn/go-prompt-manager/internal/services"
	"github.com/tbourn/go-prompt-manager/internal/utils"
)

//
// Service contracts (context-aware)
//

// PromptService defines the prompt operations consumed by HTTP handlers.
// The caller's identity travels in ctx.
type PromptService interface {
	List(ctx context.Context) ([]domain.Prompt, error)
	Get(ctx context.Context, id uint) (*domain.Prompt, error)
	CreateIdempotent(ctx context.Context, key string, in domain.PromptInput) (*domain.Prompt, bool, error)
	Update(ctx context.Context, id uint, in domain.PromptInput) (*domain.Prompt, error)
	Delete(ctx context.Context, id uint) (*domain.Prompt, error)
	Search(ctx context.Context, query string, k int) ([]services.SearchResult, error)
	// Stats reports false when conditional responses are unavailable.
	Stats(ctx context.Context) (services.PromptStats, bool)
}

// SessionRevoker signs callers out.
type SessionRevoker interface {
	CanRevoke() bool
	Revoke(ctx context.Context, token string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for prompts and sessions.
type Handlers struct {
	promptSvc  PromptService
	sessions   SessionRevoker
	cookieName string
}

// New constructs and returns a Handlers instance bound to the given services.
// sessions may be nil, in which case sign-out answers 501.
func New(promptSvc PromptService, sessions SessionRevoker, cookieName string) *Handlers {
	return &Handlers{promptSvc: promptSvc, sessions: sessions, cookieName: cookieName}
}

//
// DTOs
//

// PromptRequest is the JSON payload for creating or updating a prompt.
// All three fields must be present and non-null; empty strings are allowed.
type PromptRequest struct {
	Name        *string `json:"name" example:"Summarize"`
	Description *string `json:"description" example:"Short summary of an article"`
	Content     *string `json:"content" example:"Summarize the following text in three bullet points:"`
}

// ListPromptsResponse wraps the caller's prompts.
type ListPromptsResponse struct {
	Prompts []domain.Prompt `json:"prompts"`
}

// SearchPromptsResponse wraps ranked search results.
type SearchPromptsResponse struct {
	Query   string                  `json:"query" example:"summary"`
	Results []services.SearchResult `json:"results"`
}

//
// Helpers
//

// input validates the request body and converts it to a domain input.
func (r PromptRequest) input() (domain.PromptInput, bool) {
	if r.Name == nil || r.Description == nil || r.Content == nil {
		return domain.PromptInput{}, false
	}
	return domain.PromptInput{Name: *r.Name, Description: *r.Description, Content: *r.Content}, true
}

// bindPrompt decodes and validates the body, answering 400 on failure.
func bindPrompt(c *gin.Context) (domain.PromptInput, bool) {
	var req PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return domain.PromptInput{}, false
	}
	in, valid := req.input()
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name, description and content are required")
		return domain.PromptInput{}, false
	}
	return in, true
}

// promptID parses the :id path parameter, answering 400 when malformed.
func promptID(c *gin.Context) (uint, bool) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "prompt id must be a positive integer")
		return 0, false
	}
	return id, true
}

// failedCodes maps each operation to its persistence failure code.
var failedCodes = map[services.Op]string{
	services.OpList:   ErrCodeListFailed,
	services.OpGet:    ErrCodeGetFailed,
	services.OpCreate: ErrCodeCreateFailed,
	services.OpUpdate: ErrCodeUpdateFailed,
	services.OpDelete: ErrCodeDeleteFailed,
	services.OpSearch: ErrCodeSearchFailed,
}

// failService translates a PromptService error into an HTTP response.
func failService(c *gin.Context, err error) {
	switch services.KindOf(err) {
	case services.KindUnauthorized:
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case services.KindNotFoundOrForbidden:
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case services.KindPersistence:
		code, found := failedCodes[services.OpOf(err)]
		if !found {
			code = ErrCodeInternal
		}
		failCause(c, http.StatusInternalServerError, code, err.Error(), err)
	default:
		failCause(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error", err)
	}
}

// listETag computes a weak ETag for the caller's list (best effort).
func (h *Handlers) listETag(c *gin.Context) (string, bool) {
	st, found := h.promptSvc.Stats(c.Request.Context())
	if !found {
		return "", false
	}
	var ts int64
	if st.MaxUpdatedAt != nil {
		ts = st.MaxUpdatedAt.UnixNano()
	}
	return fmt.Sprintf(`W/"prompts:%d:%d:%d"`, st.Count, st.MaxID, ts), true
}

//
// Handlers
//

// ListPrompts godoc
// @ID          listPrompts
// @Summary     List prompts
// @Description Returns the caller's prompts, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Prompts
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"prompts:1:1:0\")
//
// @Success     200  {object} handlers.ListPromptsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /prompts [get]
func (h *Handlers) ListPrompts(c *gin.Context) {
	if etag, found := h.listETag(c); found {
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.promptSvc.List(c.Request.Context())
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ListPromptsResponse{Prompts: items})
}

// SearchPrompts godoc
// @ID          searchPrompts
// @Summary     Search prompts
// @Description Ranks the caller's prompts by word overlap with q and returns the best k.
// @Tags        Prompts
// @Produce     json
// @Security    BearerAuth
//
// @Param       q  query  string  true   "Search text"     example(summary)
// @Param       k  query  int     false  "Maximum results" minimum(1) maximum(50) default(10)
//
// @Success     200  {object} handlers.SearchPromptsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /prompts/search [get]
func (h *Handlers) SearchPrompts(c *gin.Context) {
	const maxK = 50
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q required")
		return
	}
	k := utils.ClampedInt(c.Query("k"), search.DefaultK, 1, maxK)

	results, err := h.promptSvc.Search(c.Request.Context(), q, k)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, SearchPromptsResponse{Query: q, Results: results})
}

// GetPrompt godoc
// @ID          getPrompt
// @Summary     Get a prompt
// @Tags        Prompts
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  int  true  "Prompt ID"  minimum(1)
//
// @Success     200  {object} domain.Prompt
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Prompt not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /prompts/{id} [get]
func (h *Handlers) GetPrompt(c *gin.Context) {
	id, valid := promptID(c)
	if !valid {
		return
	}
	p, err := h.promptSvc.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// CreatePrompt godoc
// @ID          createPrompt
// @Summary     Create a prompt
// @Description Creates a prompt owned by the caller. Supports idempotency via the Idempotency-Key header (same key → same prompt).
// @Tags        Prompts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.PromptRequest  true  "Prompt payload"
//
// @Success     201  {object} domain.Prompt
// @Success     200  {object} domain.Prompt  "Idempotent replay"
// @Header      200  {string} Idempotent-Replayed  "true when served from a previous request"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /prompts [post]
func (h *Handlers) CreatePrompt(c *gin.Context) {
	in, valid := bindPrompt(c)
	if !valid {
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	p, replayed, err := h.promptSvc.CreateIdempotent(c.Request.Context(), key, in)
	if err != nil {
		failService(c, err)
		return
	}
	if replayed {
		c.Header("Idempotent-Replayed", "true")
		ok(c, http.StatusOK, p)
		return
	}
	middleware.LoggerFrom(c).Info().Uint("prompt_id", p.ID).Msg("prompt created")
	ok(c, http.StatusCreated, p)
}

// UpdatePrompt godoc
// @ID          updatePrompt
// @Summary     Update a prompt
// @Description Replaces name, description and content of a prompt owned by the caller.
// @Tags        Prompts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  int                     true  "Prompt ID"  minimum(1)
// @Param       body  body  handlers.PromptRequest  true  "Prompt payload"
//
// @Success     200  {object} domain.Prompt
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Prompt not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /prompts/{id} [put]
func (h *Handlers) UpdatePrompt(c *gin.Context) {
	id, valid := promptID(c)
	if !valid {
		return
	}
	in, valid := bindPrompt(c)
	if !valid {
		return
	}
	p, err := h.promptSvc.Update(c.Request.Context(), id, in)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeletePrompt godoc
// @ID          deletePrompt
// @Summary     Delete a prompt
// @Description Deletes a prompt owned by the caller and returns it as it was.
// @Tags        Prompts
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  int  true  "Prompt ID"  minimum(1)
//
// @Success     200  {object} domain.Prompt
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object} handlers.ErrorResponse "Prompt not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /prompts/{id} [delete]
func (h *Handlers) DeletePrompt(c *gin.Context) {
	id, valid := promptID(c)
	if !valid {
		return
	}
	p, err := h.promptSvc.Delete(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	middleware.LoggerFrom(c).Info().Uint("prompt_id", p.ID).Msg("prompt deleted")
	ok(c, http.StatusOK, p)
}
