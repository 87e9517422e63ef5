// Package article is the demo audited entity: a small CMS article whose
// lifecycle feeds the audit pipeline. It shows how a host domain type
// fulfils the Auditable contract.
package article

import (
	"time"

	"chronicle/pkg/audit"
)

// Article is a content item. Secret is redacted in audit records; the
// timestamp columns are excluded by default policy.
type Article struct {
	ID        string
	Title     string
	Body      string
	Secret    string
	Published bool
	CreatedAt time.Time
	UpdatedAt time.Time

	original audit.Values
	dirty    []string
}

var (
	_ audit.Transitionable = (*Article)(nil)
	_ audit.Tagger         = (*Article)(nil)
)

func (a *Article) AuditType() string {
	return "article"
}

func (a *Article) AuditID() string {
	return a.ID
}

func (a *Article) AuditAttributes() audit.Values {
	return audit.Values{
		"title":      a.Title,
		"body":       a.Body,
		"secret":     a.Secret,
		"published":  a.Published,
		"created_at": a.CreatedAt,
		"updated_at": a.UpdatedAt,
	}
}

func (a *Article) AuditOriginal() audit.Values {
	return a.original.Clone()
}

func (a *Article) AuditDirty() []string {
	return append([]string(nil), a.dirty...)
}

func (a *Article) AuditConfig() audit.Config {
	return audit.Config{
		Modifiers: map[string]string{"secret": "mask"},
	}
}

func (a *Article) AuditTags() []string {
	return []string{"cms"}
}

// SetAuditAttribute assigns one attribute during state replay.
func (a *Article) SetAuditAttribute(name string, value any) {
	switch name {
	case "title":
		if v, ok := value.(string); ok {
			a.Title = v
		}
	case "body":
		if v, ok := value.(string); ok {
			a.Body = v
		}
	case "secret":
		if v, ok := value.(string); ok {
			a.Secret = v
		}
	case "published":
		if v, ok := value.(bool); ok {
			a.Published = v
		}
	}
}

// snapshot resets change tracking so the current state becomes the original.
func (a *Article) snapshot() {
	a.original = a.AuditAttributes()
	a.dirty = nil
}

// markDirty records changed attribute names since the last snapshot.
func (a *Article) markDirty(names ...string) {
	a.dirty = append(a.dirty, names...)
}
