package common

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the staff permission level stored on users.role.
type Role string

const (
	RoleSiteAdmin   Role = "site_admin"
	RoleCRMAdmin    Role = "crm_admin"
	RoleClientAdmin Role = "client_admin"
	RoleClientUser  Role = "client_user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSiteAdmin, RoleCRMAdmin, RoleClientAdmin, RoleClientUser:
		return true
	}
	return false
}

// CanManageImports reports whether the role may import or roll back batches.
func (r Role) CanManageImports() bool {
	return r == RoleSiteAdmin || r == RoleCRMAdmin || r == RoleClientAdmin
}

// LoginRequest represents the expected JSON body for staff login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned after successful credential verification.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
}

// Response represents a generic API response for success or error messages.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Claims represents the custom claims included in the JWT access token.
type Claims struct {
	UserID   string `json:"uid"`
	Email    string `json:"eml"`
	Role     Role   `json:"rol"`
	ClientID string `json:"cid,omitempty"` // set for client_admin and client_user
	jwt.RegisteredClaims
}

// UserUUID parses the subject user id; nil when absent or malformed.
func (c *Claims) UserUUID() *uuid.UUID {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return nil
	}
	return &id
}

// ClientScope returns the client a staff member is restricted to, or nil
// for site and CRM admins who see every client.
func (c *Claims) ClientScope() *uuid.UUID {
	if c.Role == RoleSiteAdmin || c.Role == RoleCRMAdmin {
		return nil
	}
	id, err := uuid.Parse(c.ClientID)
	if err != nil {
		// a client-level role without a client sees nothing
		none := uuid.Nil
		return &none
	}
	return &id
}

// CanAccessClient reports whether the claims allow acting on clientID.
func (c *Claims) CanAccessClient(clientID uuid.UUID) bool {
	scope := c.ClientScope()
	return scope == nil || *scope == clientID
}

type claimsKey struct{}

// WithClaims stores verified token claims on the request context.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims set by the auth middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}
