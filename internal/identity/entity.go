package identity

import "github.com/golang-jwt/jwt/v5"

// Claims are the access token claims issued by the identity provider. The
// subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
