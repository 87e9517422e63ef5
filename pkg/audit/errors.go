package audit

import "fmt"

// Configuration errors indicate a setup defect. They fail the capture before
// any side effect and are never retried automatically.

// UnsupportedEventError reports an event that is declared in the entity's
// event table but resolves to no extractor.
type UnsupportedEventError struct {
	Event Event
}

func (e *UnsupportedEventError) Error() string {
	return fmt.Sprintf("audit: unsupported event %q", e.Event)
}

// UnknownDriverError reports a driver name with no registered implementation.
type UnknownDriverError struct {
	Name string
}

func (e *UnknownDriverError) Error() string {
	return fmt.Sprintf("audit: unknown driver %q", e.Name)
}

// UnknownModifierError reports an attribute bound to an unregistered
// modifier identifier.
type UnknownModifierError struct {
	Name      string
	Attribute string
}

func (e *UnknownModifierError) Error() string {
	return fmt.Sprintf("audit: unknown modifier %q for attribute %q", e.Name, e.Attribute)
}

// ResolverError reports a context resolver failure. Partial audit context is
// considered worse than a failed audit write, so this fails the capture.
type ResolverError struct {
	Name string
	Err  error
}

func (e *ResolverError) Error() string {
	return fmt.Sprintf("audit: resolver %q: %v", e.Name, e.Err)
}

func (e *ResolverError) Unwrap() error { return e.Err }
