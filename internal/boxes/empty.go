package boxes

import (
	"context"
	"strings"
	"unicode"

	"github.com/starford/sitefeed/internal/access"
	"github.com/starford/sitefeed/internal/models"
)

// BlankBody reports a box empty when its body has no visible text once
// markup, non-breaking spaces and whitespace are removed.
func BlankBody(_ context.Context, box *models.Item, _ access.Viewer) (bool, error) {
	return IsBlank(box.Body), nil
}

// IsBlank reports whether s renders to nothing.
func IsBlank(s string) bool {
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>' && inTag:
			inTag = false
		case inTag:
		case !unicode.IsSpace(r):
			return false
		}
	}
	return true
}
