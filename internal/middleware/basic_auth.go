package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/wso2/ob-consent-engine/internal/config"
	"github.com/wso2/ob-consent-engine/internal/serviceerror"
	"github.com/wso2/ob-consent-engine/internal/utils"
)

// BasicAuth requires HTTP basic credentials matching one of the configured
// users. Passwords are compared against their bcrypt hashes.
func BasicAuth(cfg config.BasicAuthConfig) gin.HandlerFunc {
	hashes := make(map[string][]byte, len(cfg.Users))
	for _, u := range cfg.Users {
		hashes[u.Username] = []byte(u.PasswordHash)
	}

	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		hash, known := hashes[username]
		if !ok || !known || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
			c.Header("WWW-Authenticate", `Basic realm="consent-engine"`)
			utils.SendErrorResponse(c, http.StatusUnauthorized, serviceerror.InvalidFormat, "Invalid or missing credentials")
			return
		}
		c.Set(utils.ContextUsername, username)
		c.Next()
	}
}
