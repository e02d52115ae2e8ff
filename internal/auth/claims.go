package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Roles the operator API distinguishes. Viewers read call records and survey
// summaries; operators can also dial and trigger download sweeps.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
)

// Claims are the only supported JWT claims shape for the operator API.
type Claims struct {
	jwt.RegisteredClaims

	OperatorID string    `json:"operator_id"`
	Role       string    `json:"role"`
	TokenType  TokenType `json:"token_type"`
}
