package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// mirrorWrite keeps a plain-file copy of a synced target under dir,
// preserving the repository-relative layout.
func mirrorWrite(dir, target string, content []byte) error {
	dest := filepath.Join(dir, filepath.FromSlash(target))
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("create mirror directory: %w", err)
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil { // #nosec G306 - mirrored files should be readable
		return fmt.Errorf("write mirror file: %w", err)
	}
	return nil
}

// mirrorPrune removes the mirrored copy of target and any directories
// left empty by the removal, stopping at dir itself.
func mirrorPrune(dir, target string) error {
	dest := filepath.Join(dir, filepath.FromSlash(target))
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove mirror file: %w", err)
	}

	root := filepath.Clean(dir)
	for d := filepath.Dir(dest); d != root && strings.HasPrefix(d, root); d = filepath.Dir(d) {
		if err := os.Remove(d); err != nil {
			break // not empty, or already gone
		}
	}
	return nil
}
