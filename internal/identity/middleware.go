package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxOperatorClaims = "verichain_operator_claims"

// RequireScope returns a Gin middleware that enforces a valid Bearer operator
// token granting scope. On success the claims are stored in the context.
func RequireScope(tokens *TokenIssuer, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
			})
			return
		}
		if !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "token lacks scope " + scope,
			})
			return
		}

		c.Set(ctxOperatorClaims, claims)
		c.Next()
	}
}

// ClaimsFromCtx retrieves the operator claims injected by RequireScope.
func ClaimsFromCtx(c *gin.Context) *OperatorClaims {
	v, _ := c.Get(ctxOperatorClaims)
	claims, _ := v.(*OperatorClaims)
	return claims
}
