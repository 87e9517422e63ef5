package article

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"chronicle/pkg/audit"
	"chronicle/pkg/audit/transition"
	"chronicle/pkg/platform/sentinel"
	"chronicle/pkg/requestcontext"
)

// Capturer records lifecycle transitions. The auditor satisfies this; tests
// substitute a fake.
type Capturer interface {
	Capture(ctx context.Context, entity audit.Auditable, event audit.Event) (*audit.Record, error)
}

// Service owns the in-memory article collection and reports every lifecycle
// transition to the capturer. Deleted articles are kept for restore.
type Service struct {
	mu          sync.RWMutex
	articles    map[string]*Article
	deleted     map[string]*Article
	capturer    Capturer
	transitions *transition.Engine
}

// Option configures the Service.
type Option func(*Service)

// WithTransitions enables state replay through the given engine.
func WithTransitions(engine *transition.Engine) Option {
	return func(s *Service) {
		s.transitions = engine
	}
}

func NewService(capturer Capturer, opts ...Option) *Service {
	s := &Service{
		articles: make(map[string]*Article),
		deleted:  make(map[string]*Article),
		capturer: capturer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new article and captures a created record.
func (s *Service) Create(ctx context.Context, title, body, secret string) (*Article, error) {
	now := requestcontext.Now(ctx)
	a := &Article{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		Secret:    secret,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.snapshot()

	if _, err := s.capturer.Capture(ctx, a, audit.EventCreated); err != nil {
		return nil, fmt.Errorf("capture article creation: %w", err)
	}

	s.mu.Lock()
	s.articles[a.ID] = a
	s.mu.Unlock()
	return a, nil
}

// Update applies the changed fields and captures an updated record carrying
// only the dirty attributes.
func (s *Service) Update(ctx context.Context, id string, fields map[string]any) (*Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	a.snapshot()
	for name, value := range fields {
		switch name {
		case "title":
			if v, ok := value.(string); ok && v != a.Title {
				a.Title = v
				a.markDirty("title")
			}
		case "body":
			if v, ok := value.(string); ok && v != a.Body {
				a.Body = v
				a.markDirty("body")
			}
		case "secret":
			if v, ok := value.(string); ok && v != a.Secret {
				a.Secret = v
				a.markDirty("secret")
			}
		case "published":
			if v, ok := value.(bool); ok && v != a.Published {
				a.Published = v
				a.markDirty("published")
			}
		}
	}
	if len(a.dirty) == 0 {
		return a, nil
	}
	a.UpdatedAt = requestcontext.Now(ctx)
	a.markDirty("updated_at")

	if _, err := s.capturer.Capture(ctx, a, audit.EventUpdated); err != nil {
		return nil, fmt.Errorf("capture article update: %w", err)
	}
	return a, nil
}

// Delete removes the article and captures a deleted record with its final
// state.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	a.snapshot()

	if _, err := s.capturer.Capture(ctx, a, audit.EventDeleted); err != nil {
		return fmt.Errorf("capture article deletion: %w", err)
	}

	delete(s.articles, id)
	s.deleted[id] = a
	return nil
}

// Restore brings a deleted article back and captures a restored record.
func (s *Service) Restore(ctx context.Context, id string) (*Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.deleted[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	a.snapshot()

	if _, err := s.capturer.Capture(ctx, a, audit.EventRestored); err != nil {
		return nil, fmt.Errorf("capture article restore: %w", err)
	}

	delete(s.deleted, id)
	s.articles[id] = a
	return a, nil
}

// Replay applies one side of a stored record back onto the live article.
// The mutation runs under the service lock, like every other write, so it
// cannot race concurrent updates. Refusals leave the article untouched.
func (s *Service) Replay(id string, rec *audit.Record, dir transition.Direction) (*Article, error) {
	if s.transitions == nil {
		return nil, fmt.Errorf("replay is not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := s.transitions.Apply(rec, a, dir); err != nil {
		return nil, err
	}
	return a, nil
}

// Get returns a live article.
func (s *Service) Get(id string) (*Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a, nil
}
