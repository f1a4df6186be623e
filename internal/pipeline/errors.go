package pipeline

import "errors"

// Schema/config errors are fatal to the Spec() call that introduced them.
// Runtime data errors are local to an edge and never propagate past it.
var (
	ErrDuplicateID     = errors.New("pipeline: duplicate owning element id")
	ErrUnknownRef      = errors.New("pipeline: reference id not found")
	ErrKindMismatch    = errors.New("pipeline: reference kind does not match resolved element kind")
	ErrPadNotFound     = errors.New("pipeline: named pad not found on element")
	ErrPadTypeMismatch = errors.New("pipeline: source and sink pad buffer types differ")
	ErrPadDirection    = errors.New("pipeline: pad used on the wrong side of an edge")
	ErrUnknownChild    = errors.New("pipeline: unknown child id")
)
