package auth

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const userKey = "auth_user"

// HeaderUserID names the user when token auth is disabled.
const HeaderUserID = "X-User-ID"

// BearerToken reads the token from the Authorization header, falling back to
// the token query parameter browsers use for WebSocket upgrades.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Middleware resolves the caller. With a nil validator the optional
// X-User-ID header is trusted instead of a token.
func Middleware(v *Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			if raw := c.GetHeader(HeaderUserID); raw != "" {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || !domain.UserID(id).Valid() {
					abortUnauthorized(c, "invalid user id header")
					return
				}
				c.Set(userKey, domain.UserID(id))
			}
			c.Next()
			return
		}

		uid, err := v.Validate(BearerToken(c.Request))
		if err != nil {
			log.Debug().Err(err).Str("module", "auth").Str("path", c.FullPath()).Msg("rejected token")
			abortUnauthorized(c, "invalid or missing token")
			return
		}
		c.Set(userKey, uid)
		c.Next()
	}
}

// RequireUser aborts requests that Middleware could not attribute to a user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserFrom(c); !ok {
			abortUnauthorized(c, "user required")
			return
		}
		c.Next()
	}
}

// ServiceMiddleware admits requests carrying the shared service token.
// User tokens are refused; an empty token refuses everything.
func ServiceMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "service access disabled"})
			return
		}
		got := BearerToken(c.Request)
		if got == "" {
			abortUnauthorized(c, "missing service token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			log.Warn().Str("module", "auth").Str("path", c.FullPath()).Str("ip", c.ClientIP()).Msg("rejected service token")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "service token required"})
			return
		}
		c.Next()
	}
}

func UserFrom(c *gin.Context) (domain.UserID, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return 0, false
	}
	uid, ok := v.(domain.UserID)
	return uid, ok && uid.Valid()
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}
