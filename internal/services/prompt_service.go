// Package services – PromptService
//
// This file implements PromptService, the single entry point for prompt
// operations. Every method resolves the caller's identity first; without one
// it fails with KindUnauthorized and the store is never touched. With one, it
// performs exactly one ownership-scoped store operation and normalizes the
// outcome into the closed error set in errors.go. Backend causes are logged
// here and never leave the service.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-prompt-manager/internal/auth"
	"github.com/tbourn/go-prompt-manager/internal/domain"
	"github.com/tbourn/go-prompt-manager/internal/search"
)

// PromptRepo defines the ownership-scoped store contract required by
// PromptService. Every method takes the owner explicitly and returns
// gorm.ErrRecordNotFound when no row matches (id, owner).
type PromptRepo interface {
	ListPrompts(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Prompt, error)
	GetPrompt(ctx context.Context, db *gorm.DB, ownerID string, id uint) (*domain.Prompt, error)
	CreatePrompt(ctx context.Context, db *gorm.DB, ownerID string, in domain.PromptInput) (*domain.Prompt, error)
	UpdatePrompt(ctx context.Context, db *gorm.DB, ownerID string, id uint, in domain.PromptInput) (*domain.Prompt, error)
	DeletePrompt(ctx context.Context, db *gorm.DB, ownerID string, id uint) (*domain.Prompt, error)
}

// IdempotencyRepo records which prompt a (user, key) pair created.
type IdempotencyRepo interface {
	GetIdempotency(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, db *gorm.DB, userID, key string, promptID uint, status int, ttl time.Duration) (*domain.Idempotency, error)
	RepointIdempotency(ctx context.Context, db *gorm.DB, userID, key string, promptID uint, ttl time.Duration) error
}

// StatsRepo aggregates an owner's prompts.
type StatsRepo interface {
	PromptsStats(ctx context.Context, db *gorm.DB, ownerID string) (count int64, maxID uint, maxUpdatedAt *time.Time, err error)
}

// PromptStats changes whenever one of the owner's prompts is created,
// updated or deleted.
type PromptStats struct {
	Count        int64
	MaxID        uint
	MaxUpdatedAt *time.Time
}

// SearchResult is a prompt with its similarity to the query.
type SearchResult struct {
	Prompt domain.Prompt `json:"prompt"`
	Score  float64       `json:"score" example:"0.5"`
}

var promptOps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "prompt_operations_total",
		Help: "Prompt operations by operation and outcome.",
	},
	[]string{"op", "outcome"},
)

func init() {
	prometheus.MustRegister(promptOps)
}

// PromptService exposes list, get, create, update, delete and search on the
// caller's own prompts.
type PromptService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the ownership-scoped prompt store.
	Repo PromptRepo
	// Identity resolves the caller for each call.
	Identity auth.Resolver

	// Idem enables CreateIdempotent replays. Nil disables them.
	Idem IdempotencyRepo
	// IdemTTL is how long an idempotency record stays valid.
	IdemTTL time.Duration

	// StatsRepo enables Stats. Nil disables it.
	StatsRepo StatsRepo

	// SearchOptions tune ranking in Search.
	SearchOptions []search.Option
}

// NewPromptService constructs a PromptService.
func NewPromptService(db *gorm.DB, r PromptRepo, id auth.Resolver) *PromptService {
	return &PromptService{
		DB:       db,
		Repo:     r,
		Identity: id,
		IdemTTL:  24 * time.Hour,
	}
}

func (s *PromptService) caller(ctx context.Context, op Op) (string, error) {
	if s.Identity == nil {
		return "", s.fail(ctx, op, unauthorized(op), nil)
	}
	id, ok := s.Identity.Resolve(ctx)
	if !ok || id == "" {
		return "", s.fail(ctx, op, unauthorized(op), nil)
	}
	return string(id), nil
}

// fail records the outcome and logs the cause of persistence failures.
func (s *PromptService) fail(ctx context.Context, op Op, err error, cause error) error {
	kind := KindOf(err)
	promptOps.WithLabelValues(string(op), kind.String()).Inc()
	if kind == KindPersistence {
		log.Ctx(ctx).Error().Err(cause).Str("op", string(op)).Msg("prompt store failure")
	}
	return err
}

// classify maps a store error to the closed error set.
func (s *PromptService) classify(ctx context.Context, op Op, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.fail(ctx, op, notFound(op), err)
	}
	return s.fail(ctx, op, persistence(op), err)
}

func succeeded(op Op) {
	promptOps.WithLabelValues(string(op), "ok").Inc()
}

// List returns the caller's prompts, newest first. An empty result is an
// empty slice, not an error.
func (s *PromptService) List(ctx context.Context) ([]domain.Prompt, error) {
	owner, err := s.caller(ctx, OpList)
	if err != nil {
		return nil, err
	}
	items, err := s.Repo.ListPrompts(ctx, s.DB, owner)
	if err != nil {
		return nil, s.fail(ctx, OpList, persistence(OpList), err)
	}
	if items == nil {
		items = []domain.Prompt{}
	}
	succeeded(OpList)
	return items, nil
}

// Get returns one of the caller's prompts.
func (s *PromptService) Get(ctx context.Context, id uint) (*domain.Prompt, error) {
	owner, err := s.caller(ctx, OpGet)
	if err != nil {
		return nil, err
	}
	p, err := s.Repo.GetPrompt(ctx, s.DB, owner, id)
	if err != nil {
		return nil, s.classify(ctx, OpGet, err)
	}
	succeeded(OpGet)
	return p, nil
}

// Create stores a new prompt owned by the caller.
func (s *PromptService) Create(ctx context.Context, in domain.PromptInput) (*domain.Prompt, error) {
	owner, err := s.caller(ctx, OpCreate)
	if err != nil {
		return nil, err
	}
	p, err := s.Repo.CreatePrompt(ctx, s.DB, owner, in)
	if err != nil {
		return nil, s.fail(ctx, OpCreate, persistence(OpCreate), err)
	}
	succeeded(OpCreate)
	return p, nil
}

// CreateIdempotent behaves like Create, except that a repeated key from the
// same caller returns the prompt created by the first request (replayed=true)
// instead of inserting again. An empty key or a nil Idem falls back to Create.
//
// When the prompt behind a live key has been deleted, one new prompt is
// created and the key is moved onto it, so later retries replay the new row.
// Recording the key is best effort: a failure there does not undo the insert.
func (s *PromptService) CreateIdempotent(ctx context.Context, key string, in domain.PromptInput) (p *domain.Prompt, replayed bool, err error) {
	if key == "" || s.Idem == nil {
		p, err = s.Create(ctx, in)
		return p, false, err
	}
	owner, err := s.caller(ctx, OpCreate)
	if err != nil {
		return nil, false, err
	}

	stale := false
	if rec, err := s.Idem.GetIdempotency(ctx, s.DB, owner, key, time.Now().UTC()); err == nil && rec != nil {
		prev, err := s.Repo.GetPrompt(ctx, s.DB, owner, rec.PromptID)
		switch {
		case err == nil:
			succeeded(OpCreate)
			return prev, true, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, false, s.fail(ctx, OpCreate, persistence(OpCreate), err)
		}
		log.Ctx(ctx).Debug().Uint("prompt_id", rec.PromptID).Str("idempotency_key", key).Msg("idempotent replay target deleted")
		stale = true
	}

	p, err = s.Repo.CreatePrompt(ctx, s.DB, owner, in)
	if err != nil {
		return nil, false, s.fail(ctx, OpCreate, persistence(OpCreate), err)
	}
	if stale {
		err = s.Idem.RepointIdempotency(ctx, s.DB, owner, key, p.ID, s.IdemTTL)
	} else {
		_, err = s.Idem.CreateIdempotency(ctx, s.DB, owner, key, p.ID, 201, s.IdemTTL)
	}
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("idempotency_key", key).Msg("idempotency record not stored")
	}
	succeeded(OpCreate)
	return p, false, nil
}

// Stats summarizes the caller's prompts for conditional list responses. It
// reports false when no StatsRepo is configured, there is no caller, or the
// query fails; it does not count as a prompt operation.
func (s *PromptService) Stats(ctx context.Context) (PromptStats, bool) {
	if s.StatsRepo == nil || s.Identity == nil {
		return PromptStats{}, false
	}
	owner, found := s.Identity.Resolve(ctx)
	if !found || owner == "" {
		return PromptStats{}, false
	}
	count, maxID, maxTS, err := s.StatsRepo.PromptsStats(ctx, s.DB, string(owner))
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Msg("prompt stats unavailable")
		return PromptStats{}, false
	}
	return PromptStats{Count: count, MaxID: maxID, MaxUpdatedAt: maxTS}, true
}

// Update replaces name, description and content of one of the caller's
// prompts and returns the stored row.
func (s *PromptService) Update(ctx context.Context, id uint, in domain.PromptInput) (*domain.Prompt, error) {
	owner, err := s.caller(ctx, OpUpdate)
	if err != nil {
		return nil, err
	}
	p, err := s.Repo.UpdatePrompt(ctx, s.DB, owner, id, in)
	if err != nil {
		return nil, s.classify(ctx, OpUpdate, err)
	}
	succeeded(OpUpdate)
	return p, nil
}

// Delete removes one of the caller's prompts and returns it as it was.
func (s *PromptService) Delete(ctx context.Context, id uint) (*domain.Prompt, error) {
	owner, err := s.caller(ctx, OpDelete)
	if err != nil {
		return nil, err
	}
	p, err := s.Repo.DeletePrompt(ctx, s.DB, owner, id)
	if err != nil {
		return nil, s.classify(ctx, OpDelete, err)
	}
	succeeded(OpDelete)
	return p, nil
}

// Search ranks the caller's prompts against query and returns up to k of
// them, best first. Only the caller's own prompts are considered.
func (s *PromptService) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	owner, err := s.caller(ctx, OpSearch)
	if err != nil {
		return nil, err
	}
	items, err := s.Repo.ListPrompts(ctx, s.DB, owner)
	if err != nil {
		return nil, s.fail(ctx, OpSearch, persistence(OpSearch), err)
	}

	byID := make(map[uint]domain.Prompt, len(items))
	docs := make([]search.Doc, 0, len(items))
	for _, p := range items {
		byID[p.ID] = p
		docs = append(docs, search.Doc{ID: p.ID, Text: p.Name + "\n" + p.Description + "\n" + p.Content})
	}

	hits := search.Rank(query, docs, k, s.SearchOptions...)
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchResult{Prompt: byID[h.ID], Score: h.Score})
	}
	succeeded(OpSearch)
	return out, nil
}
