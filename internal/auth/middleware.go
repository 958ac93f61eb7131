package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	orgIDKey  contextKey = "org_id"
)

// Middleware validates the JWT and injects the user and organization IDs
// into the request context. Every gated route runs behind it.
func Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
		}

		secretKey, err := jwtSecretFromEnv()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Server auth configuration error")
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secretKey, nil
		})
		if err != nil || !token.Valid {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token claims")
		}

		sub, err := claims.GetSubject()
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token subject")
		}
		userID, err := uuid.Parse(sub)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid user ID in token")
		}

		orgClaim, _ := claims["org"].(string)
		orgID, err := uuid.Parse(orgClaim)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid organization in token")
		}

		c.Set(string(userIDKey), userID)
		c.Set(string(orgIDKey), orgID)
		return next(c)
	}
}

// Identity returns the authenticated user and organization from the context.
func Identity(c echo.Context) (userID, orgID uuid.UUID, err error) {
	uid, ok := c.Get(string(userIDKey)).(uuid.UUID)
	if !ok {
		return uuid.Nil, uuid.Nil, errors.New("user ID not found in context")
	}
	oid, ok := c.Get(string(orgIDKey)).(uuid.UUID)
	if !ok {
		return uuid.Nil, uuid.Nil, errors.New("organization ID not found in context")
	}
	return uid, oid, nil
}
