package engine

import (
	"fmt"
	"path"
	"strings"

	"github.com/prostopil/patchwatch/internal/model"
)

// commitMessage renders the commit message for an intent. The subject
// names the action, the filename and the drop-folder date; the body
// carries the full local and repository paths for traceability.
func commitMessage(in model.Intent) string {
	var action string
	switch in.Kind {
	case model.KindCreate:
		action = "Add"
	case model.KindUpdate:
		action = "Update"
	case model.KindDelete:
		action = "Delete"
	default:
		action = "Sync"
	}

	file := path.Base(in.TargetPath)
	date := in.DateFolder
	if date == "" {
		date = in.DetectedAt.Format("20060102")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s from %s via PatchWatch\n\n", action, file, date)
	if in.SourcePath != "" {
		fmt.Fprintf(&b, "Source: %s\n", in.SourcePath)
	}
	fmt.Fprintf(&b, "Target: %s\n", in.TargetPath)
	return b.String()
}
