package account

import "strings"

// Role is a login fact derived from which slots are populated.
type Role string

const (
	Visitor        Role = "Visitor"
	UserOfCyber    Role = "UserOfCyber"
	UserOfDeschool Role = "UserOfDeschool"
)

// Roles is the set of roles held at one moment, in a fixed order.
type Roles []Role

// Has reports whether r contains role.
func (r Roles) Has(role Role) bool {
	for _, x := range r {
		if x == role {
			return true
		}
	}
	return false
}

func (r Roles) String() string {
	s := make([]string, len(r))
	for i, x := range r {
		s[i] = string(x)
	}
	return strings.Join(s, ",")
}

// LoginRoles derives the roles for the given slot values:
//
//	Visitor:        no Deschool profile and no session token
//	UserOfCyber:    a session token and a profile with a handle
//	UserOfDeschool: a Deschool profile
func LoginRoles(profile *Profile, deschool *DeschoolProfile, token *TokenInfo) Roles {
	roles := Roles{}
	if deschool == nil && token == nil {
		roles = append(roles, Visitor)
	}
	if token != nil && profile != nil && profile.Handle != "" {
		roles = append(roles, UserOfCyber)
	}
	if deschool != nil {
		roles = append(roles, UserOfDeschool)
	}
	return roles
}
