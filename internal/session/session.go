package session

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	Sales              Role = "Sales"
	Production         Role = "Production"
	ProductionApproval Role = "ProductionApproval"
	Accounts           Role = "Accounts"
	Installation       Role = "Installation"
	Verification       Role = "Verification"
	Billing            Role = "Billing"
	Admin              Role = "Admin"
	SuperAdmin         Role = "SuperAdmin"
)

var ErrInvalidToken = errors.New("invalid session token")

// Context is the identity of the user a view is rendered for. It is set once
// at login and never mutated by the order core.
type Context struct {
	UserID   string
	Username string
	Role     Role
	Token    string
}

// IsAdmin reports whether the role sees every order.
func (c Context) IsAdmin() bool {
	return c.Role == Admin || c.Role == SuperAdmin
}

// CanSee is the ownership rule shared by bulk ingestion, realtime
// reconciliation and the filter engine.
func (c Context) CanSee(ownerID, assigneeID string) bool {
	if c.IsAdmin() {
		return true
	}
	if c.UserID == "" {
		return false
	}
	return ownerID == c.UserID || assigneeID == c.UserID
}

// Parse validates an HS256 token and builds a Context from its claims.
// The user id may be sent as "id" or "user_id".
func Parse(tokenString, secret string) (Context, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Context{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Context{}, ErrInvalidToken
	}

	ctx := Context{Token: tokenString}
	ctx.UserID = claimString(claims, "id")
	if ctx.UserID == "" {
		ctx.UserID = claimString(claims, "user_id")
	}
	ctx.Username = claimString(claims, "username")
	ctx.Role = Role(claimString(claims, "role"))
	if ctx.UserID == "" || ctx.Role == "" {
		return Context{}, fmt.Errorf("%w: missing id or role claim", ErrInvalidToken)
	}
	return ctx, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
