package watch

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrIgnored marks events the pipeline should silently skip: paths
// outside the drop-folder convention, transient editor artifacts, and
// directory events. It is not a failure.
var ErrIgnored = errors.New("event ignored")

// dropMarker separates the date folder from the mirrored source tree:
// <root>/<YYYYMMDD>/to/<source-path>/<file>.
const dropMarker = "to"

// DropPath is the decomposition of a watched file path into the
// drop-folder convention's parts.
type DropPath struct {
	// DateFolder is the 8-digit date segment (YYYYMMDD, or DDMMYYYY as
	// a legacy fallback).
	DateFolder string
	// SourceDir is the slash-separated path between the to/ marker and
	// the filename. Empty for files directly under to/.
	SourceDir string
	// Filename is the final path segment.
	Filename string
}

// ParseDropPath decomposes an absolute path under root according to the
// drop-folder convention. Paths outside root or not matching the
// convention return ErrIgnored.
func ParseDropPath(root, path string) (DropPath, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return DropPath{}, fmt.Errorf("%w: outside watch root: %s", ErrIgnored, path)
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 3 {
		return DropPath{}, fmt.Errorf("%w: not in <date>/to/ layout: %s", ErrIgnored, rel)
	}

	date := parts[0]
	if !isDateFolder(date) {
		return DropPath{}, fmt.Errorf("%w: no date folder: %s", ErrIgnored, rel)
	}
	if parts[1] != dropMarker {
		return DropPath{}, fmt.Errorf("%w: missing %s/ marker: %s", ErrIgnored, dropMarker, rel)
	}

	return DropPath{
		DateFolder: date,
		SourceDir:  strings.Join(parts[2:len(parts)-1], "/"),
		Filename:   parts[len(parts)-1],
	}, nil
}

// isDateFolder accepts an 8-digit segment that parses as YYYYMMDD, with
// DDMMYYYY as a fallback for older drop folders.
func isDateFolder(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	if _, err := time.Parse("20060102", s); err == nil {
		return true
	}
	if _, err := time.Parse("02012006", s); err == nil {
		return true
	}
	return false
}

// Transient artifacts produced by editors and copy tools. Files matching
// the denylist never become intents.
var (
	transientPrefixes = []string{".", "~$"}
	transientSuffixes = []string{".tmp", ".temp", ".swp", ".swx", ".part", ".crdownload", "~"}
)

// IsTransient reports whether a filename is a well-known temporary
// artifact.
func IsTransient(name string) bool {
	for _, p := range transientPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, s := range transientSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}
