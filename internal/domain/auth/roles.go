package auth

import "strings"

// Role is an application role. Values are stored lower-case with underscores.
type Role string

const (
	RoleAdmin             Role = "admin"
	RoleHRManager         Role = "hr_manager"
	RoleDepartmentManager Role = "department_manager"
	RoleEmployee          Role = "employee"
	RoleRecruiter         Role = "recruiter"
	RoleTrainingManager   Role = "training_manager"
)

var KnownRoles = []Role{
	RoleAdmin,
	RoleHRManager,
	RoleDepartmentManager,
	RoleEmployee,
	RoleRecruiter,
	RoleTrainingManager,
}

var roleAliases = map[string]Role{
	"manager": RoleDepartmentManager,
}

// ParseRole normalizes a raw role string. Unknown roles are returned
// normalized but are not Known.
func ParseRole(raw string) Role {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	if alias, ok := roleAliases[normalized]; ok {
		return alias
	}
	return Role(normalized)
}

func (r Role) Known() bool {
	for _, known := range KnownRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Matches compares two roles case-insensitively, folding aliases.
func (r Role) Matches(other Role) bool {
	left := ParseRole(string(r))
	if left == "" {
		return false
	}
	return left == ParseRole(string(other))
}

func (r Role) String() string {
	return string(r)
}
