package rbac

// Role names. Keep these stable; they are stored in users.role and
// business_users.role.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	BusinessRoleOwner  = "owner"
	BusinessRoleMember = "member"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
