package model

import (
	"fmt"
)

// Role is the office role assigned to a profile. The set is closed.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleConsultants   Role = "consultants"
	RoleDoctors       Role = "doctors"
	RoleHygienists    Role = "hygienists"
	RoleAssistants    Role = "assistants"
	RoleReceptionist  Role = "receptionist"
)

// Roles lists every role from highest to lowest privilege.
var Roles = []Role{
	RoleAdministrator,
	RoleConsultants,
	RoleDoctors,
	RoleHygienists,
	RoleAssistants,
	RoleReceptionist,
}

var roleRank = map[Role]int{
	RoleAdministrator: 6,
	RoleConsultants:   5,
	RoleDoctors:       4,
	RoleHygienists:    3,
	RoleAssistants:    2,
	RoleReceptionist:  1,
}

// Rank returns the privilege rank of the role; unknown roles rank 0.
func (r Role) Rank() int {
	return roleRank[r]
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Outranks reports whether r is strictly above other.
func (r Role) Outranks(other Role) bool {
	return r.Valid() && r.Rank() > other.Rank()
}

func (r Role) IsAdmin() bool {
	return r == RoleAdministrator
}

func (r Role) String() string {
	return string(r)
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}
