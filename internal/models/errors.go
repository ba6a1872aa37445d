package models

import (
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	// ErrInvalidValue reports a malformed Value tree: a non-string key,
	// an unsupported leaf type, a cycle or excessive nesting.
	ErrInvalidValue = fmt.Errorf("invalid value: %w", errdefs.ErrInvalidArgument)

	// ErrMissingStep reports a metric or loss record without a step.
	ErrMissingStep = fmt.Errorf("step is required: %w", errdefs.ErrInvalidArgument)

	ErrUnknownKind = fmt.Errorf("unknown record kind: %w", errdefs.ErrInvalidArgument)
)
