// Package access decides what a viewer may see and change.
package access

import (
	"slices"

	"github.com/starford/sitefeed/internal/models"
)

// Viewer is the identity a request acts as. The zero Viewer is anonymous.
type Viewer struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Anonymous returns the viewer used for unauthenticated requests.
func Anonymous() Viewer { return Viewer{} }

// IsAnonymous reports whether v carries no identity.
func (v Viewer) IsAnonymous() bool { return v.Name == "" }

// HasRole reports whether v holds role.
func (v Viewer) HasRole(role string) bool {
	return slices.Contains(v.Roles, role)
}

// Checker evaluates per-item permissions.
type Checker interface {
	CanView(v Viewer, it *models.Item) bool
	CanEdit(v Viewer, it *models.Item) bool
}

// Policy is the default Checker: public items are visible to everyone,
// private items to their owner and editors. Only owners and editors may edit.
type Policy struct {
	editorRoles []string
}

// NewPolicy creates a Policy granting edit rights to editorRoles.
func NewPolicy(editorRoles ...string) *Policy {
	return &Policy{editorRoles: slices.Clone(editorRoles)}
}

func (p *Policy) isEditor(v Viewer) bool {
	for _, r := range p.editorRoles {
		if v.HasRole(r) {
			return true
		}
	}
	return false
}

func isOwner(v Viewer, it *models.Item) bool {
	return !v.IsAnonymous() && it.Owner != "" && it.Owner == v.Name
}

// CanView implements Checker.
func (p *Policy) CanView(v Viewer, it *models.Item) bool {
	if it == nil {
		return false
	}
	if it.IsPublic() {
		return true
	}
	return isOwner(v, it) || p.isEditor(v)
}

// CanEdit implements Checker.
func (p *Policy) CanEdit(v Viewer, it *models.Item) bool {
	if it == nil || v.IsAnonymous() {
		return false
	}
	return isOwner(v, it) || p.isEditor(v)
}

var _ Checker = (*Policy)(nil)
