// Package diff computes size-based change descriptors for document versions.
// It is an audit-trail approximation, not a semantic diff.
package diff

import (
	"fmt"

	"github.com/VeriTeknik/pluggedin-app-sub006/internal/core/domain"
)

// Write modes accepted by Compute. Unknown modes fall through to the
// symmetric size delta.
const (
	ModeReplace = "replace"
	ModeAppend  = "append"
	ModePrepend = "prepend"
)

// Compute derives a ContentDiff from the byte lengths of the old and new
// content for the given write mode.
func Compute(mode string, oldContent, newContent []byte) domain.ContentDiff {
	oldLen := len(oldContent)
	newLen := len(newContent)

	var d domain.ContentDiff
	switch mode {
	case ModeReplace:
		// Full replacement: everything old goes, everything new arrives.
		d.Additions = newLen
		d.Deletions = oldLen
	case ModeAppend, ModePrepend:
		d.Additions = max(0, newLen-oldLen)
		d.Deletions = 0
	default:
		d.Additions = max(0, newLen-oldLen)
		d.Deletions = max(0, oldLen-newLen)
	}

	d.Description = describe(mode, d.Additions, d.Deletions)
	return d
}

func describe(mode string, additions, deletions int) string {
	switch mode {
	case ModeAppend:
		return fmt.Sprintf("Appended %d bytes", additions)
	case ModePrepend:
		return fmt.Sprintf("Prepended %d bytes", additions)
	case ModeReplace:
		return fmt.Sprintf("Replaced content (+%d/-%d bytes)", additions, deletions)
	default:
		return fmt.Sprintf("Content changed (+%d/-%d bytes)", additions, deletions)
	}
}
