package source

import (
	"archive/zip"
	"path"
	"strings"
)

// WalkFunc is called for each regular, safely named entry of an archive.
// If an error is returned, processing stops.
type WalkFunc func(file *zip.File) error

// UnsafeFunc is called for entries skipped by Walk because of their name.
type UnsafeFunc func(name string)

// Walk visits the entries of r in archive order. Entries with absolute paths
// or ".." components are reported to unsafe and never opened.
func Walk(r *zip.Reader, walkFn WalkFunc, unsafe UnsafeFunc) error {
	for _, f := range r.File {
		name := f.FileHeader.Name
		if !isSafePath(name) {
			if unsafe != nil {
				unsafe(name)
			}
			continue
		}
		if f.FileInfo().IsDir() {
			continue
		}
		if err := walkFn(f); err != nil {
			return err
		}
	}
	return nil
}

// isSafePath returns false for paths that could escape an extraction
// directory: absolute paths and those containing ".." components.
func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	if len(name) > 1 && name[1] == ':' {
		return false
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return false
		}
	}
	return true
}
