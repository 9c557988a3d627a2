package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrPathTraversal = errors.New("path traversal not allowed")

const maxSymlinks = 40

// PathResolver maps a document to base/<owner>/<token>.pdf and refuses any
// result that, once symlinks and ".." are resolved, leaves the base directory.
type PathResolver struct {
	base string
}

func NewPathResolver(base string) (*PathResolver, error) {
	if strings.TrimSpace(base) == "" {
		return nil, errors.New("storage base path is empty")
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve storage base %q: %w", base, err)
	}
	canonical, err := realpath(abs, 0)
	if err != nil {
		return nil, fmt.Errorf("resolve storage base %q: %w", base, err)
	}
	return &PathResolver{base: canonical}, nil
}

// Base returns the canonical base directory.
func (r *PathResolver) Base() string {
	return r.base
}

func (r *PathResolver) Resolve(ownerID uint64, token string) (string, error) {
	sep := string(filepath.Separator)
	candidate := r.base + sep + strconv.FormatUint(ownerID, 10) + sep + token + ".pdf"

	resolved, err := realpath(candidate, 0)
	if err != nil {
		return "", fmt.Errorf("resolve document path: %w", err)
	}

	rel, err := filepath.Rel(r.base, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+sep) {
		return "", fmt.Errorf("%w: %q resolves outside %s", ErrPathTraversal, token, r.base)
	}
	return resolved, nil
}

// realpath resolves path component by component, following symlinks before
// applying "..". Components that do not exist are appended as-is.
func realpath(path string, depth int) (string, error) {
	if depth > maxSymlinks {
		return "", fmt.Errorf("too many levels of symbolic links: %s", path)
	}
	sep := string(filepath.Separator)

	resolved := sep
	for _, part := range strings.Split(path, sep) {
		switch part {
		case "", ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, part)
		info, err := os.Lstat(next)
		if errors.Is(err, fs.ErrNotExist) {
			resolved = next
			continue
		}
		if err != nil {
			return "", err
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			resolved = next
			continue
		}

		target, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = resolved + sep + target
		}
		resolved, err = realpath(target, depth+1)
		if err != nil {
			return "", err
		}
	}
	return resolved, nil
}
