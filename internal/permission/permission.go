// Package permission implements the wildcard scope model used to guard the
// external API. A scope is one of "resource:action", "resource:*" or "*".
package permission

import "strings"

// Kind tags the shape of a parsed scope.
type Kind int

const (
	Invalid Kind = iota
	Exact
	ResourceWildcard
	Global
)

func (k Kind) String() string {
	switch k {
	case Exact:
		return "exact"
	case ResourceWildcard:
		return "resource_wildcard"
	case Global:
		return "global"
	default:
		return "invalid"
	}
}

// Wildcard is the global scope that grants everything.
const Wildcard = "*"

// Scope is a parsed permission string.
type Scope struct {
	Kind     Kind
	Resource string
	Action   string
}

// Parse turns a permission string into a Scope. Anything that is not one of
// the three recognised shapes parses as Invalid and grants nothing beyond a
// literal match.
func Parse(s string) Scope {
	s = strings.TrimSpace(s)
	if s == Wildcard {
		return Scope{Kind: Global}
	}
	resource, action, ok := strings.Cut(s, ":")
	if !ok || resource == "" || action == "" || resource == Wildcard || strings.Contains(action, ":") {
		return Scope{Kind: Invalid}
	}
	if action == Wildcard {
		return Scope{Kind: ResourceWildcard, Resource: resource}
	}
	return Scope{Kind: Exact, Resource: resource, Action: action}
}

// String renders the scope back to its canonical text form.
func (s Scope) String() string {
	switch s.Kind {
	case Global:
		return Wildcard
	case ResourceWildcard:
		return s.Resource + ":" + Wildcard
	case Exact:
		return s.Resource + ":" + s.Action
	default:
		return ""
	}
}

// Grants reports whether this granted scope covers the required string
// through a wildcard or an exact match. The resource of required is the
// text before its first colon.
func (s Scope) Grants(required string) bool {
	switch s.Kind {
	case Global:
		return true
	case ResourceWildcard:
		resource, _, _ := strings.Cut(required, ":")
		return s.Resource == resource
	case Exact:
		return s.String() == required
	default:
		return false
	}
}

// Set is a granted permission set, parsed once.
type Set struct {
	raw    []string
	scopes []Scope
}

// NewSet parses the granted permissions. Invalid entries are kept in the raw
// list, where they can only satisfy an identical required string.
func NewSet(granted []string) Set {
	set := Set{raw: granted, scopes: make([]Scope, 0, len(granted))}
	for _, g := range granted {
		if sc := Parse(g); sc.Kind != Invalid {
			set.scopes = append(set.scopes, sc)
		}
	}
	return set
}

// Strings returns the granted permissions as they were supplied.
func (s Set) Strings() []string {
	if s.raw == nil {
		return []string{}
	}
	return s.raw
}

// Has reports whether the set grants the required permission: a literal
// match on a granted string, the global wildcard, or "resource:*" for the
// required resource.
func (s Set) Has(required string) bool {
	required = strings.TrimSpace(required)
	if required == "" {
		return false
	}
	for _, g := range s.raw {
		if strings.TrimSpace(g) == required {
			return true
		}
	}
	for _, sc := range s.scopes {
		if sc.Grants(required) {
			return true
		}
	}
	return false
}

// Missing returns the required permissions the set does not grant, in the
// order they were requested.
func (s Set) Missing(required []string) []string {
	var missing []string
	for _, r := range required {
		if !s.Has(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

// HasAny reports whether at least one of the required permissions is granted.
func (s Set) HasAny(required []string) bool {
	for _, r := range required {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// HasPermission is the one-shot form of NewSet(granted).Has(required).
func HasPermission(granted []string, required string) bool {
	return NewSet(granted).Has(required)
}
