package process

import (
	"errors"
	"fmt"
)

// Limit errors.
var (
	ErrLimitExceeded = errors.New("resource limit exceeded")
	ErrInvalidLimit  = errors.New("invalid resource limit value")
)

// ResourceType represents the type of resource being limited.
type ResourceType string

const (
	// ResourceFiles represents open files.
	ResourceFiles ResourceType = "files"
	// ResourceChildren represents children that have not exited.
	ResourceChildren ResourceType = "children"
)

// ResourceLimits defines resource limits for a process. Zero means no limit.
type ResourceLimits struct {
	// MaxOpenFiles is the maximum number of open files.
	MaxOpenFiles int
	// MaxChildren is the maximum number of running children.
	MaxChildren int
}

// DefaultLimits returns the default resource limits.
func DefaultLimits() *ResourceLimits {
	return &ResourceLimits{
		MaxOpenFiles: 0,
		MaxChildren:  0,
	}
}

// Validate checks the limits for negative values.
func (l *ResourceLimits) Validate() error {
	if l.MaxOpenFiles < 0 {
		return fmt.Errorf("%w: max open files %d", ErrInvalidLimit, l.MaxOpenFiles)
	}
	if l.MaxChildren < 0 {
		return fmt.Errorf("%w: max children %d", ErrInvalidLimit, l.MaxChildren)
	}
	return nil
}

// LimitError represents a resource limit violation.
type LimitError struct {
	Type  ResourceType
	Limit int
	Used  int
}

// Error returns the error message.
func (e *LimitError) Error() string {
	return fmt.Sprintf("%s limit exceeded: %d of %d in use", e.Type, e.Used, e.Limit)
}

// Unwrap returns ErrLimitExceeded.
func (e *LimitError) Unwrap() error {
	return ErrLimitExceeded
}

// IsLimitError checks if an error is a limit error.
func IsLimitError(err error) bool {
	var le *LimitError
	return errors.As(err, &le)
}

// checkChildren reports whether p may start another child.
func (l *ResourceLimits) checkChildren(p *Process) error {
	if l == nil || l.MaxChildren == 0 {
		return nil
	}
	if used := p.liveChildren(); used >= l.MaxChildren {
		return &LimitError{Type: ResourceChildren, Limit: l.MaxChildren, Used: used}
	}
	return nil
}
