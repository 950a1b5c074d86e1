package middleware

import (
	"net/http"
	"strings"

	"order_dashboard/internal/session"

	"github.com/gin-gonic/gin"
)

const sessionKey = "session"

// Auth parses the bearer token into a session.Context stored on the request.
// Browsers' EventSource cannot set headers, so a "token" query parameter is
// accepted as well.
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				APIResponse(c, http.StatusUnauthorized, false, "Malformed authorization header", nil)
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			APIResponse(c, http.StatusUnauthorized, false, "Missing token", nil)
			c.Abort()
			return
		}

		sess, err := session.Parse(tokenString, secret)
		if err != nil {
			APIResponse(c, http.StatusUnauthorized, false, "Invalid token", nil)
			c.Abort()
			return
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

// SessionFrom returns the session set by Auth.
func SessionFrom(c *gin.Context) (session.Context, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return session.Context{}, false
	}
	sess, ok := v.(session.Context)
	return sess, ok
}
