package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

// requireUser writes a 401 and returns false when no claims are attached.
func requireUser(c *gin.Context) (*models.JWTClaims, bool) {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
