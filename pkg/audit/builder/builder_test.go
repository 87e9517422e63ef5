package builder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/pkg/audit"
	"chronicle/pkg/audit/audittest"
	"chronicle/pkg/audit/modifier"
	"chronicle/pkg/audit/resolver"
	"chronicle/pkg/requestcontext"
)

func newArticle() *audittest.Entity {
	return &audittest.Entity{
		Type: "articles",
		ID:   "7",
		Attrs: audit.Values{
			"title":     "Draft",
			"published": 0,
		},
		Orig: audit.Values{
			"title":     "Draft",
			"published": 0,
		},
	}
}

func TestBuildCreated(t *testing.T) {
	b := New(nil, nil)

	rec, err := b.Build(context.Background(), newArticle(), audit.EventCreated)

	require.NoError(t, err)
	assert.Equal(t, audit.EventCreated, rec.Event)
	assert.Equal(t, "articles", rec.EntityType)
	assert.Equal(t, "7", rec.EntityID)
	assert.Equal(t, audit.Values{}, rec.OldValues)
	assert.Equal(t, audit.Values{"title": "Draft", "published": 0}, rec.NewValues)
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.Redacted)
}

func TestBuildUpdatedDiffsDirtyOnly(t *testing.T) {
	b := New(nil, nil)
	entity := newArticle()
	entity.Attrs["title"] = "Final"
	entity.DirtyList = []string{"title"}

	rec, err := b.Build(context.Background(), entity, audit.EventUpdated)

	require.NoError(t, err)
	assert.Equal(t, audit.Values{"title": "Draft"}, rec.OldValues)
	assert.Equal(t, audit.Values{"title": "Final"}, rec.NewValues)
}

func TestBuildUpdatedDropsIneligibleDirty(t *testing.T) {
	b := New(nil, nil)
	entity := newArticle()
	entity.Config = audit.Config{Exclude: []string{"published"}}
	entity.Attrs["title"] = "Final"
	entity.Attrs["published"] = 1
	entity.DirtyList = []string{"title", "published"}

	rec, err := b.Build(context.Background(), entity, audit.EventUpdated)

	require.NoError(t, err)
	assert.Equal(t, audit.Values{"title": "Draft"}, rec.OldValues)
	assert.Equal(t, audit.Values{"title": "Final"}, rec.NewValues)
}

func TestBuildDeleted(t *testing.T) {
	b := New(nil, nil)

	rec, err := b.Build(context.Background(), newArticle(), audit.EventDeleted)

	require.NoError(t, err)
	assert.Equal(t, audit.Values{"title": "Draft", "published": 0}, rec.OldValues)
	assert.Equal(t, audit.Values{}, rec.NewValues)
}

func TestBuildRestoredMirrorsDeleted(t *testing.T) {
	b := New(nil, nil)
	entity := newArticle()

	deleted, err := b.Build(context.Background(), entity, audit.EventDeleted)
	require.NoError(t, err)
	restored, err := b.Build(context.Background(), entity, audit.EventRestored)
	require.NoError(t, err)

	assert.Equal(t, deleted.OldValues, restored.NewValues)
	assert.Equal(t, deleted.NewValues, restored.OldValues)
}

func TestBuildUnsupportedEvent(t *testing.T) {
	b := New(nil, nil)

	_, err := b.Build(context.Background(), newArticle(), audit.Event("archived"))

	var unsupported *audit.UnsupportedEventError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, audit.Event("archived"), unsupported.Event)
}

func TestBuildCustomBypassesEligibility(t *testing.T) {
	b := New(nil, nil)
	entity := newArticle()
	// "published" is excluded, but custom maps are caller-defined.
	entity.Config = audit.Config{Exclude: []string{"published"}, Events: []string{"reordered"}}

	rec, err := b.BuildCustom(context.Background(), entity, audit.Event("reordered"),
		audit.Values{"published": 0}, audit.Values{"published": 1})

	require.NoError(t, err)
	assert.Equal(t, audit.Values{"published": 0}, rec.OldValues)
	assert.Equal(t, audit.Values{"published": 1}, rec.NewValues)
}

func TestBuildAppliesModifiersAndFlagsRedaction(t *testing.T) {
	modifiers := modifier.NewRegistry()
	require.NoError(t, modifiers.RegisterRedactor("mask", modifier.Mask{}))
	b := New(nil, modifiers)

	entity := newArticle()
	entity.Config = audit.Config{Modifiers: map[string]string{"title": "mask"}}

	rec, err := b.Build(context.Background(), entity, audit.EventCreated)

	require.NoError(t, err)
	assert.True(t, rec.Redacted)
	assert.NotEqual(t, "Draft", rec.NewValues["title"])
}

func TestBuildUnknownModifierFailsCapture(t *testing.T) {
	b := New(nil, nil)
	entity := newArticle()
	entity.Config = audit.Config{Modifiers: map[string]string{"title": "nope"}}

	_, err := b.Build(context.Background(), entity, audit.EventCreated)

	var unknown *audit.UnknownModifierError
	require.ErrorAs(t, err, &unknown)
}

func TestBuildMergesActorContextAndTags(t *testing.T) {
	resolvers := resolver.Defaults()
	b := New(resolvers, nil)

	entity := newArticle()
	entity.Tags = []string{"blog", " blog ", "draft"}

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithActor(context.Background(), "users", "42")
	ctx = requestcontext.WithURL(ctx, "https://example.test/articles/7")
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.9", "curl/8.0")
	ctx = requestcontext.WithTime(ctx, now)

	rec, err := b.Build(ctx, entity, audit.EventCreated)

	require.NoError(t, err)
	assert.Equal(t, "users", rec.ActorType)
	assert.Equal(t, "42", rec.ActorID)
	assert.Equal(t, "https://example.test/articles/7", rec.Context["url"])
	assert.Equal(t, "203.0.113.9", rec.Context["ip_address"])
	assert.Equal(t, []string{"blog", "draft"}, rec.Tags)
	assert.Equal(t, now, rec.CreatedAt)
}

func TestBuildResolverFailureIsHard(t *testing.T) {
	resolvers := resolver.NewRegistry()
	require.NoError(t, resolvers.Register("flaky", func(context.Context, audit.Auditable) (any, error) {
		return nil, assert.AnError
	}))
	b := New(resolvers, nil)

	_, err := b.Build(context.Background(), newArticle(), audit.EventCreated)

	var resolverErr *audit.ResolverError
	require.ErrorAs(t, err, &resolverErr)
}

func TestBuildRunsTransformHook(t *testing.T) {
	b := New(nil, nil)

	entity := &audittest.TransformingEntity{Entity: *newArticle()}
	entity.Transform = func(flat map[string]any) map[string]any {
		flat["slug"] = "articles-7"
		return flat
	}

	rec, err := b.Build(context.Background(), entity, audit.EventCreated)

	require.NoError(t, err)
	assert.Equal(t, "articles-7", rec.Context["slug"])
}
