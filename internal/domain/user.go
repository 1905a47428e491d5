package domain

// Roles known to the identity collaborator.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the local projection of an identity owned by the auth service.
type User struct {
	ID       string `json:"id"`                  // Identity id
	Username string `json:"username"`            // Unique handle, lowercase
	Email    string `json:"email"`               // Contact address, used by the gateway
	Role     string `json:"role"`                // user or admin
	WalletID string `json:"wallet_id,omitempty"` // Empty until a wallet is opened
}

// IsAdmin reports whether u holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserQuery selects a single user. Exactly one field is expected to be set.
type UserQuery struct {
	ID       string
	Username string
}
