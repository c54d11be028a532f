package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const secretHeader = "X-Vapi-Secret"

var errNoPlatformCredential = errors.New("no platform credential")

// webhookAuthMiddleware accepts the shared secret header or an HS256 bearer token signed with it.
// An empty secret disables the check.
func webhookAuthMiddleware(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	key := []byte(secret)
	return func(c *gin.Context) {
		if err := verifyPlatformCredential(c, key); err != nil {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "Unauthorized", err))
			return
		}
		c.Next()
	}
}

// verifyPlatformCredential checks the secret header first. A wrong header does not fall back to the bearer token.
func verifyPlatformCredential(c *gin.Context, key []byte) error {
	if provided := c.GetHeader(secretHeader); provided != "" {
		if subtle.ConstantTimeCompare([]byte(provided), key) == 1 {
			return nil
		}
		return errors.New("secret header mismatch")
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return errNoPlatformCredential
	}
	return verifyWebhookToken(strings.TrimSpace(parts[1]), key)
}

func verifyWebhookToken(raw string, key []byte) error {
	_, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err
}
