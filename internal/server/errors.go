package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nvandessel/solirona/internal/ratelimit"
	"github.com/nvandessel/solirona/internal/simulation"
)

// statusFor maps engine and limiter errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, simulation.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, simulation.ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, simulation.ErrDuplicateIdentifier):
		return http.StatusConflict
	case errors.Is(err, ratelimit.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func abortBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
