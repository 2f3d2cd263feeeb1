package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Gin context key holding the authenticated user id. Handlers trust this
// value only; account ids never come from request bodies.
const contextKeyUserID = "auth_user_id"

// sessionMiddleware validates the session JWT from the Authorization header
// or the session cookie and stores the subject in the context.
func sessionMiddleware(cfg Config) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString := bearerToken(ctx.GetHeader("Authorization"))
		if tokenString == "" {
			if cookie, err := ctx.Cookie(cfg.SessionCookieName); err == nil {
				tokenString = cookie
			}
		}
		if tokenString == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope("unauthorized", "missing session"))
			return
		}
		subject, err := validateSessionToken(tokenString, cfg)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope("unauthorized", "invalid session"))
			return
		}
		ctx.Set(contextKeyUserID, subject)
		ctx.Next()
	}
}

func validateSessionToken(tokenString string, cfg Config) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(cfg.SessionSigningKey), nil
	}, jwt.WithIssuer(cfg.SessionIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("empty subject")
	}
	return subject, nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func sessionUserID(ctx *gin.Context) string {
	value, ok := ctx.Get(contextKeyUserID)
	if !ok {
		return ""
	}
	userID, _ := value.(string)
	return userID
}
