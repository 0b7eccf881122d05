package domain

type Permission string

const (
	PermSubmitBooks   Permission = "books:submit"
	PermEditAnyBook   Permission = "books:edit-any"
	PermModerateBooks Permission = "books:moderate"
)

var rolePermissions = map[UserRole]map[Permission]struct{}{
	RoleUser: {},
	RoleAuthor: {
		PermSubmitBooks: {},
	},
	RoleLibrarian: {
		PermSubmitBooks:   {},
		PermEditAnyBook:   {},
		PermModerateBooks: {},
	},
	RoleAdmin: {
		PermSubmitBooks: {},
	},
}

// Can reports whether the role grants p. Unknown roles grant nothing.
func (r UserRole) Can(p Permission) bool {
	_, ok := rolePermissions[r][p]
	return ok
}

// SignupRoles are the roles a caller may pick at registration.
var SignupRoles = []UserRole{RoleLibrarian, RoleAuthor, RoleUser}

func IsSignupRole(r UserRole) bool {
	for _, allowed := range SignupRoles {
		if r == allowed {
			return true
		}
	}
	return false
}
