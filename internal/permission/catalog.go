package permission

import "slices"

// Actions understood by the external API.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
)

// Definition describes a grantable permission for the management UI.
type Definition struct {
	Permission  string `json:"permission"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Available lists the permissions a key can be granted individually.
var Available = []Definition{
	{"contacts:read", "contacts", ActionRead, "Read contact information"},
	{"contacts:write", "contacts", ActionWrite, "Create and update contacts"},
	{"contacts:delete", "contacts", ActionDelete, "Delete contacts"},
	{"opportunities:read", "opportunities", ActionRead, "Read leads/opportunities information"},
	{"opportunities:write", "opportunities", ActionWrite, "Create and update leads/opportunities"},
	{"opportunities:delete", "opportunities", ActionDelete, "Delete leads/opportunities"},
}

// Resources that may appear in "resource:*" grants and route guards. This is
// wider than Available because campaigns and agents are only reachable
// through wildcard grants.
var Resources = []string{"contacts", "opportunities", "campaigns", "agents"}

// Defaults is the permission set given to a key created without one.
var Defaults = []string{"contacts:read", "contacts:write", "opportunities:read", "opportunities:write"}

// Describe returns the catalogue description of p, or p itself when unknown.
func Describe(p string) string {
	for _, d := range Available {
		if d.Permission == p {
			return d.Description
		}
	}
	return p
}

// Grantable reports whether p may be assigned to a key.
func Grantable(p string) bool {
	sc := Parse(p)
	switch sc.Kind {
	case Global:
		return true
	case ResourceWildcard:
		return slices.Contains(Resources, sc.Resource)
	case Exact:
		return slices.Contains(Resources, sc.Resource) &&
			slices.Contains([]string{ActionRead, ActionWrite, ActionDelete}, sc.Action)
	default:
		return false
	}
}

// For builds the Exact permission string for a resource and action.
func For(resource, action string) string {
	return resource + ":" + action
}
