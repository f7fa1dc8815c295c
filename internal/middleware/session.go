package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
)

// LoginChecker verifies that a token still belongs to the active login.
type LoginChecker interface {
	ValidateLearnerLogin(ctx context.Context, learnerID int, jti string) error
}

// CheckSingleDeviceLogin validates the JWT's JTI against the active login in Redis.
// If the JTI doesn't match, the request is rejected (the login was reset by an admin).
func CheckSingleDeviceLogin(auth LoginChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		// Only enforce for learner tokens.
		if claims.TokenType != service.TokenTypeLearner {
			c.Next()
			return
		}

		if err := auth.ValidateLearnerLogin(c.Request.Context(), claims.UserID, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}
