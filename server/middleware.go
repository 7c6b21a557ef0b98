package server

import (
	"context"
	"net/http"
	"strings"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	errs "github.com/techagentng/citizenchat/errors"
	"github.com/techagentng/citizenchat/server/response"
	"github.com/techagentng/citizenchat/services/jwt"
)

const userIDKey = "userID"

// Authorize resolves the caller from the bearer token. A userId query
// parameter, when present, must name the same user.
func (s *Server) Authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := getTokenFromHeader(c)
		if accessToken == "" {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		claims, err := jwt.ValidateAndGetClaims(accessToken, s.Config.JWTSecret)
		if err != nil || claims["type"] == jwt.RealtimeTokenType {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}
		userID, err := jwt.UserID(claims)
		if err != nil {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
			return
		}

		if claimed := c.Query("userId"); claimed != "" && claimed != userID {
			respondAndAbort(c, "", http.StatusForbidden, nil, errs.NotAuthorized("userId does not match the authenticated user"))
			return
		}

		c.Set(userIDKey, userID)
		c.Set("access_token", accessToken)
		c.Next()
	}
}

// requestTimeout bounds every request's context.
func (s *Server) requestTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Config.RequestTimeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.Config.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// limitWrites throttles mutating requests per authenticated user.
func limitWrites(store ratelimit.Store) gin.HandlerFunc {
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: errs.ErrorHandler,
		KeyFunc:      keyFunc,
	})
}

func keyFunc(c *gin.Context) string {
	if id := c.GetString(userIDKey); id != "" {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}

func getTokenFromHeader(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// currentUser returns the id Authorize stored on the context.
func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// respondAndAbort calls response.JSON and aborts the Context
func respondAndAbort(c *gin.Context, message string, status int, data interface{}, e *errs.Error) {
	response.JSON(c, message, status, data, e)
	c.Abort()
}
