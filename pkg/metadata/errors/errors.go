// Package errors provides error types and error codes for the layer engine.
// This is a leaf package with no internal dependencies, designed to be imported
// by the storage backends and every engine component without causing
// circular imports.
//
// Import graph: errors <- metadata <- store implementations <- layer/union/cow/hooks <- layerfs
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred.
type ErrorCode int

const (
	// ErrPathNotFound indicates the path (or inode) does not resolve in the chain.
	ErrPathNotFound ErrorCode = iota + 1

	// ErrAlreadyExists indicates the name is already taken.
	ErrAlreadyExists

	// ErrNotDirectory indicates a path component or target is not a directory.
	ErrNotDirectory

	// ErrIsDirectory indicates a file operation was attempted on a directory.
	ErrIsDirectory

	// ErrDirectoryNotEmpty indicates rmdir (or rename over) a non-empty directory.
	ErrDirectoryNotEmpty

	// ErrInvalidPath indicates a malformed path, a reserved name, or an
	// unrecognized control command.
	ErrInvalidPath

	// ErrPathTooLong indicates the full path exceeds the configured maximum.
	ErrPathTooLong

	// ErrFilenameTooLong indicates a single component exceeds the configured maximum.
	ErrFilenameTooLong

	// ErrLayerHasChildren indicates a layer cannot be deleted while other layers
	// use it as their parent.
	ErrLayerHasChildren

	// ErrLayerIsActive indicates the active layer cannot be deleted.
	ErrLayerIsActive

	// ErrLayerNotFound indicates the layer does not exist or was deleted.
	ErrLayerNotFound

	// ErrDiffInvalidation indicates a diff chain could not be replayed faithfully.
	ErrDiffInvalidation

	// ErrStorageFailure wraps an error from the backing repository.
	ErrStorageFailure

	// ErrLayerChanged indicates the layer a caller pinned is no longer active.
	// Retryable.
	ErrLayerChanged

	// ErrChainTooDeep indicates a new layer would exceed the maximum chain depth.
	ErrChainTooDeep

	// ErrChainCorrupt indicates a parent walk did not terminate within the depth limit.
	ErrChainCorrupt

	// ErrAccessDenied indicates an unknown tenant or a cross-tenant access.
	ErrAccessDenied

	// ErrFileTooLarge indicates a write would grow a file past the size limit.
	ErrFileTooLarge
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrPathNotFound:
		return "PathNotFound"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrNotDirectory:
		return "NotDirectory"
	case ErrIsDirectory:
		return "IsDirectory"
	case ErrDirectoryNotEmpty:
		return "DirectoryNotEmpty"
	case ErrInvalidPath:
		return "InvalidPath"
	case ErrPathTooLong:
		return "PathTooLong"
	case ErrFilenameTooLong:
		return "FilenameTooLong"
	case ErrLayerHasChildren:
		return "LayerHasChildren"
	case ErrLayerIsActive:
		return "LayerIsActive"
	case ErrLayerNotFound:
		return "LayerNotFound"
	case ErrDiffInvalidation:
		return "DiffInvalidation"
	case ErrStorageFailure:
		return "StorageFailure"
	case ErrLayerChanged:
		return "LayerChanged"
	case ErrChainTooDeep:
		return "ChainTooDeep"
	case ErrChainCorrupt:
		return "ChainCorrupt"
	case ErrAccessDenied:
		return "AccessDenied"
	case ErrFileTooLarge:
		return "FileTooLarge"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// StoreError represents a layer engine error with an error code.
type StoreError struct {
	Code    ErrorCode
	Message string
	Path    string

	// Err is the underlying backend error for ErrStorageFailure.
	Err error

	// Retryable marks failures a front end may retry as a whole call
	// (transaction conflicts, serialization failures, LayerChanged).
	Retryable bool
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path: %s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the wrapped backend error, if any.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// ============================================================================
// Factory Functions
// ============================================================================

// NewNotFoundError creates a PathNotFound error.
func NewNotFoundError(path, resourceType string) *StoreError {
	return &StoreError{
		Code:    ErrPathNotFound,
		Message: fmt.Sprintf("%s not found", resourceType),
		Path:    path,
	}
}

// NewAlreadyExistsError creates an AlreadyExists error.
func NewAlreadyExistsError(path string) *StoreError {
	return &StoreError{
		Code:    ErrAlreadyExists,
		Message: "already exists",
		Path:    path,
	}
}

// NewNotDirectoryError creates a NotDirectory error.
func NewNotDirectoryError(path string) *StoreError {
	return &StoreError{
		Code:    ErrNotDirectory,
		Message: "not a directory",
		Path:    path,
	}
}

// NewIsDirectoryError creates an IsDirectory error.
func NewIsDirectoryError(path string) *StoreError {
	return &StoreError{
		Code:    ErrIsDirectory,
		Message: "is a directory",
		Path:    path,
	}
}

// NewNotEmptyError creates a DirectoryNotEmpty error.
func NewNotEmptyError(path string) *StoreError {
	return &StoreError{
		Code:    ErrDirectoryNotEmpty,
		Message: "directory not empty",
		Path:    path,
	}
}

// NewInvalidPathError creates an InvalidPath error.
func NewInvalidPathError(path, reason string) *StoreError {
	return &StoreError{
		Code:    ErrInvalidPath,
		Message: reason,
		Path:    path,
	}
}

// NewPathTooLongError creates a PathTooLong error.
func NewPathTooLongError(path string) *StoreError {
	return &StoreError{
		Code:    ErrPathTooLong,
		Message: "path too long",
		Path:    path,
	}
}

// NewFilenameTooLongError creates a FilenameTooLong error.
func NewFilenameTooLongError(name string) *StoreError {
	return &StoreError{
		Code:    ErrFilenameTooLong,
		Message: "filename too long",
		Path:    name,
	}
}

// NewLayerNotFoundError creates a LayerNotFound error.
func NewLayerNotFoundError(ref string) *StoreError {
	return &StoreError{
		Code:    ErrLayerNotFound,
		Message: fmt.Sprintf("layer %q not found", ref),
	}
}

// NewLayerHasChildrenError creates a LayerHasChildren error.
func NewLayerHasChildrenError(ref string, children int) *StoreError {
	return &StoreError{
		Code:    ErrLayerHasChildren,
		Message: fmt.Sprintf("layer %q has %d child layer(s)", ref, children),
	}
}

// NewLayerIsActiveError creates a LayerIsActive error.
func NewLayerIsActiveError(ref string) *StoreError {
	return &StoreError{
		Code:    ErrLayerIsActive,
		Message: fmt.Sprintf("layer %q is the active layer", ref),
	}
}

// NewLayerChangedError creates a retryable LayerChanged error.
func NewLayerChangedError(pinned, active string) *StoreError {
	return &StoreError{
		Code:      ErrLayerChanged,
		Message:   fmt.Sprintf("pinned layer %s is no longer active (active: %s)", pinned, active),
		Retryable: true,
	}
}

// NewChainTooDeepError creates a ChainTooDeep error.
func NewChainTooDeepError(ref string, limit int) *StoreError {
	return &StoreError{
		Code:    ErrChainTooDeep,
		Message: fmt.Sprintf("layer %q would exceed the maximum chain depth of %d", ref, limit),
	}
}

// NewChainCorruptError creates a ChainCorrupt error.
func NewChainCorruptError(ref, reason string) *StoreError {
	return &StoreError{
		Code:    ErrChainCorrupt,
		Message: fmt.Sprintf("chain of layer %q is corrupt: %s", ref, reason),
	}
}

// NewDiffInvalidationError creates a DiffInvalidation error.
func NewDiffInvalidationError(path, reason string) *StoreError {
	return &StoreError{
		Code:    ErrDiffInvalidation,
		Message: reason,
		Path:    path,
	}
}

// NewStorageError wraps a backend error as a StorageFailure.
func NewStorageError(op string, err error, retryable bool) *StoreError {
	return &StoreError{
		Code:      ErrStorageFailure,
		Message:   op,
		Err:       err,
		Retryable: retryable,
	}
}

// ContextError returns a StorageFailure for op once ctx is done, or nil.
func ContextError(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return NewStorageError(op, err, false)
	}
	return nil
}

// NewAccessDeniedError creates an AccessDenied error.
func NewAccessDeniedError(reason string) *StoreError {
	return &StoreError{
		Code:    ErrAccessDenied,
		Message: reason,
	}
}

// NewFileTooLargeError creates a FileTooLarge error.
func NewFileTooLargeError(path string, size, limit uint64) *StoreError {
	return &StoreError{
		Code:    ErrFileTooLarge,
		Message: fmt.Sprintf("size %d exceeds limit %d", size, limit),
		Path:    path,
	}
}

// ============================================================================
// Error Type Checking Helpers
// ============================================================================

// CodeOf returns the ErrorCode carried by err, or 0 if err is not a StoreError.
func CodeOf(err error) ErrorCode {
	var storeErr *StoreError
	if stderrors.As(err, &storeErr) {
		return storeErr.Code
	}
	return 0
}

// Is reports whether err is a StoreError with the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound returns true for PathNotFound and LayerNotFound errors.
func IsNotFound(err error) bool {
	code := CodeOf(err)
	return code == ErrPathNotFound || code == ErrLayerNotFound
}

// IsRetryable returns true if the whole call may be retried by the caller.
func IsRetryable(err error) bool {
	var storeErr *StoreError
	if stderrors.As(err, &storeErr) {
		return storeErr.Retryable
	}
	return false
}
