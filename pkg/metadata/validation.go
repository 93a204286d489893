package metadata

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// Filesystem path limits (POSIX standard values)
const (
	// MaxNameLen is the maximum length of a filename component (NAME_MAX)
	MaxNameLen = 255
	// MaxPathLen is the maximum length of a full path (PATH_MAX)
	MaxPathLen = 4096
)

// Limits bounds path shapes. Zero fields fall back to the POSIX values.
type Limits struct {
	MaxPathLen int
	MaxNameLen int
}

func (l Limits) pathLen() int {
	if l.MaxPathLen <= 0 {
		return MaxPathLen
	}
	return l.MaxPathLen
}

func (l Limits) nameLen() int {
	if l.MaxNameLen <= 0 {
		return MaxNameLen
	}
	return l.MaxNameLen
}

// ValidateName validates a single path component.
// Returns InvalidPath if name is empty, ".", "..", or contains '/' or NUL.
// Returns FilenameTooLong if name exceeds the limit.
func (l Limits) ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return errors.NewInvalidPathError(name, "invalid name")
	}
	if strings.ContainsAny(name, "/\x00") {
		return errors.NewInvalidPathError(name, "name contains a disallowed character")
	}
	if len(name) > l.nameLen() {
		return errors.NewFilenameTooLongError(name)
	}
	return nil
}

// SplitPath validates an absolute path and returns its components.
// The root ("/") has no components. Repeated and trailing slashes are ignored.
//
// Returns InvalidPath for empty or relative paths, "." or ".." components and
// NUL bytes, PathTooLong if the path exceeds the limit, and FilenameTooLong if
// a component does.
func (l Limits) SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, errors.NewInvalidPathError(path, "empty path")
	}
	if path[0] != '/' {
		return nil, errors.NewInvalidPathError(path, "path must be absolute")
	}
	if len(path) > l.pathLen() {
		return nil, errors.NewPathTooLongError(path)
	}

	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		if err := l.ValidateName(part); err != nil {
			if se, ok := err.(*errors.StoreError); ok {
				se.Path = path
			}
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// JoinPath builds the canonical form of a component list.
func JoinPath(parts []string) string {
	return "/" + strings.Join(parts, "/")
}

// SplitParent validates path and returns its parent components and final
// name. The root has no parent: it returns InvalidPath.
func (l Limits) SplitParent(path string) ([]string, string, error) {
	parts, err := l.SplitPath(path)
	if err != nil {
		return nil, "", err
	}
	if len(parts) == 0 {
		return nil, "", errors.NewInvalidPathError(path, "operation not allowed on root")
	}
	return parts[:len(parts)-1], parts[len(parts)-1], nil
}

var tenantPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateTenantID checks that a tenant identifier is safe to embed in keys.
func ValidateTenantID(id string) error {
	if !tenantPattern.MatchString(id) {
		return errors.NewAccessDeniedError(fmt.Sprintf("invalid tenant id %q", id))
	}
	return nil
}

// ValidateLayerName checks a layer name. Layer names share the filename rules
// and may not contain whitespace, since control commands split on it.
func (l Limits) ValidateLayerName(name string) error {
	if err := l.ValidateName(name); err != nil {
		return err
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return errors.NewInvalidPathError(name, "layer name contains whitespace")
	}
	return nil
}

// DefaultMode returns the default mode for a given inode type.
func DefaultMode(t InodeType) uint32 {
	switch t {
	case TypeDirectory:
		return 0755
	case TypeSymlink:
		return 0777
	default:
		return 0644
	}
}

// ApplyModeDefault applies the default mode if the provided mode is 0.
// Also masks the mode to valid permission bits (0o7777).
func ApplyModeDefault(mode uint32, t InodeType) uint32 {
	if mode == 0 {
		mode = DefaultMode(t)
	}
	return mode & 0o7777
}
