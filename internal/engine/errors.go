package engine

import (
	"errors"
	"fmt"

	"github.com/dmschema/migrate/internal/differ"
)

// The engine's error taxonomy. Every error the apply pipeline returns wraps
// exactly one of these sentinels so callers (the RPC layer, the CLI) can
// branch on errors.Is without parsing message text.
var (
	ErrConnection             = errors.New("connection error")
	ErrIntrospection          = errors.New("introspection error")
	ErrValidation             = errors.New("validation error")
	ErrDiff                   = errors.New("diff error")
	ErrDestructiveChangeBlocked = errors.New("destructive change blocked")
	ErrUnexecutableMigration  = errors.New("unexecutable migration")
	ErrApply                  = errors.New("apply error")
)

// ApplyError wraps ErrApply with the offending step, for a caller that wants
// to show exactly where a migration died.
type ApplyError struct {
	Step differ.Step
	Err  error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("applying %s on %q: %v", e.Step.Kind, e.Step.TableName, e.Err)
}

func (e *ApplyError) Unwrap() error { return ErrApply }

// ConnectionError wraps ErrConnection with the connection target.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return ErrConnection }

// IntrospectionError wraps ErrIntrospection with the table being described,
// if any (empty when the failure happened before a specific table was reached).
type IntrospectionError struct {
	Table string
	Err   error
}

func (e *IntrospectionError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("introspecting schema: %v", e.Err)
	}
	return fmt.Sprintf("introspecting table %q: %v", e.Table, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return ErrIntrospection }
