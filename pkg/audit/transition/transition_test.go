package transition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/pkg/audit"
	"chronicle/pkg/audit/audittest"
	"chronicle/pkg/audit/builder"
	"chronicle/pkg/audit/modifier"
	"chronicle/pkg/audit/resolver"
)

func newArticle() *audittest.Entity {
	return &audittest.Entity{
		Type: "articles",
		ID:   "7",
		Attrs: audit.Values{
			"title":     "Final",
			"published": 1,
		},
	}
}

func updateRecord() *audit.Record {
	return &audit.Record{
		Event:      audit.EventUpdated,
		EntityType: "articles",
		EntityID:   "7",
		OldValues:  audit.Values{"title": "Draft"},
		NewValues:  audit.Values{"title": "Final"},
	}
}

func TestApplyOldUndoesChange(t *testing.T) {
	engine := New(nil)
	entity := newArticle()

	require.NoError(t, engine.Apply(updateRecord(), entity, ToOld))

	assert.Equal(t, "Draft", entity.Attrs["title"])
	// Attributes absent from the record stay untouched.
	assert.Equal(t, 1, entity.Attrs["published"])
	assert.Equal(t, audit.Values{"title": "Draft"}, entity.Assigned)
}

func TestApplyNewFastForwards(t *testing.T) {
	engine := New(nil)
	entity := newArticle()
	entity.Attrs["title"] = "Draft"

	require.NoError(t, engine.Apply(updateRecord(), entity, ToNew))

	assert.Equal(t, "Final", entity.Attrs["title"])
}

func TestApplyRefusesTypeMismatch(t *testing.T) {
	engine := New(nil)
	entity := newArticle()
	entity.Type = "users"

	err := engine.Apply(updateRecord(), entity, ToOld)

	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "users", mismatch.Expected)
	assert.Equal(t, "articles", mismatch.Actual)
	assert.Empty(t, entity.Assigned)
}

func TestApplyAcceptsAliasedType(t *testing.T) {
	engine := New(nil, WithAliases(map[string]string{"articles": "posts"}))
	entity := newArticle()
	entity.Type = "posts"

	require.NoError(t, engine.Apply(updateRecord(), entity, ToOld))
	assert.Equal(t, "Draft", entity.Attrs["title"])
}

func TestApplyRefusesIDMismatch(t *testing.T) {
	engine := New(nil)
	entity := newArticle()
	entity.ID = "8"

	err := engine.Apply(updateRecord(), entity, ToOld)

	var mismatch *IDMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "8", mismatch.Expected)
	assert.Equal(t, "7", mismatch.Actual)
	assert.Empty(t, entity.Assigned)
}

func TestApplyRefusesRedactedRecord(t *testing.T) {
	engine := New(nil)
	entity := newArticle()
	rec := updateRecord()
	rec.Redacted = true

	err := engine.Apply(rec, entity, ToOld)

	var redacted *RedactedError
	require.ErrorAs(t, err, &redacted)
	assert.Equal(t, "articles", redacted.EntityType)
	assert.Empty(t, entity.Assigned)
	assert.Equal(t, "Final", entity.Attrs["title"])
}

func TestApplyRefusesRedactingEntity(t *testing.T) {
	modifiers := modifier.NewRegistry()
	require.NoError(t, modifiers.RegisterRedactor("mask", modifier.Mask{}))
	engine := New(modifiers)

	entity := newArticle()
	entity.Config = audit.Config{Modifiers: map[string]string{"title": "mask"}}

	err := engine.Apply(updateRecord(), entity, ToOld)

	var redacted *RedactedError
	require.ErrorAs(t, err, &redacted)
	assert.Empty(t, entity.Assigned)
}

func TestApplyDecodesEncodedValues(t *testing.T) {
	modifiers := modifier.NewRegistry()
	require.NoError(t, modifiers.RegisterEncoder("base64", modifier.Base64{}))
	engine := New(modifiers)

	entity := newArticle()
	entity.Config = audit.Config{Modifiers: map[string]string{"title": "base64"}}

	// Stored values carry the encoded form; replay must hand back plaintext.
	rec := updateRecord()
	rec.OldValues = audit.Values{"title": "RHJhZnQ="}
	rec.NewValues = audit.Values{"title": "RmluYWw="}

	require.NoError(t, engine.Apply(rec, entity, ToOld))
	assert.Equal(t, "Draft", entity.Attrs["title"])

	require.NoError(t, engine.Apply(rec, entity, ToNew))
	assert.Equal(t, "Final", entity.Attrs["title"])
}

func TestApplyInvertsBuilderEncoding(t *testing.T) {
	modifiers := modifier.NewRegistry()
	require.NoError(t, modifiers.RegisterEncoder("base64", modifier.Base64{}))

	entity := newArticle()
	entity.Orig = audit.Values{"title": "Draft", "published": 1}
	entity.DirtyList = []string{"title"}
	entity.Config = audit.Config{Modifiers: map[string]string{"title": "base64"}}

	rec, err := builder.New(resolver.NewRegistry(), modifiers).Build(context.Background(), entity, audit.EventUpdated)
	require.NoError(t, err)
	require.Equal(t, "RHJhZnQ=", rec.OldValues["title"])

	engine := New(modifiers)
	require.NoError(t, engine.Apply(rec, entity, ToOld))
	assert.Equal(t, "Draft", entity.Attrs["title"])
}

func TestApplyRefusesUndecodableValue(t *testing.T) {
	modifiers := modifier.NewRegistry()
	require.NoError(t, modifiers.RegisterEncoder("base64", modifier.Base64{}))
	engine := New(modifiers)

	entity := newArticle()
	entity.Config = audit.Config{Modifiers: map[string]string{"title": "base64"}}

	rec := updateRecord()
	rec.OldValues = audit.Values{"title": "%%% not base64"}

	err := engine.Apply(rec, entity, ToOld)

	var decode *DecodeError
	require.ErrorAs(t, err, &decode)
	assert.Equal(t, "title", decode.Attribute)
	assert.Empty(t, entity.Assigned)
	assert.Equal(t, "Final", entity.Attrs["title"])
}

func TestApplyRefusesIncompatibleAttributes(t *testing.T) {
	engine := New(nil)
	entity := newArticle()
	entity.Config = audit.Config{Exclude: []string{"title"}}

	rec := updateRecord()
	rec.OldValues["subtitle"] = "gone"

	err := engine.Apply(rec, entity, ToOld)

	var incompatible *IncompatibleAttributesError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, []string{"subtitle", "title"}, incompatible.Attributes)
	assert.Empty(t, entity.Assigned)
}
