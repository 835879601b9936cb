package fsutil

import (
	"os"
	"path/filepath"
	"time"
)

// Probe reports accessibility of a directory. It backs the control
// surface's POST /test-path endpoint.
type Probe struct {
	Accessible   bool          `json:"accessible"`
	PathExists   bool          `json:"path_exists"`
	IsDirectory  bool          `json:"is_directory"`
	Readable     bool          `json:"readable"`
	Writable     bool          `json:"writable"`
	ResponseTime time.Duration `json:"response_time"`
	ErrorDetails string        `json:"error_details,omitempty"`
}

// ProbeDir checks that a path exists, is a directory, and is readable
// and writable, measuring how long the checks took.
func ProbeDir(path string) Probe {
	start := time.Now()
	p := Probe{}

	info, err := os.Stat(path)
	if err != nil {
		p.ErrorDetails = "Path does not exist"
		p.ResponseTime = time.Since(start)
		return p
	}
	p.PathExists = true

	if !info.IsDir() {
		p.ErrorDetails = "Path is not a directory"
		p.ResponseTime = time.Since(start)
		return p
	}
	p.IsDirectory = true

	if _, err := os.ReadDir(path); err != nil {
		p.ErrorDetails = "No read permission"
	} else {
		p.Readable = true
	}

	probeFile := filepath.Join(path, ".patchwatch_test")
	if err := os.WriteFile(probeFile, []byte("test"), 0o600); err == nil {
		p.Writable = true
		_ = os.Remove(probeFile)
	}

	p.Accessible = p.Readable
	p.ResponseTime = time.Since(start)
	return p
}
