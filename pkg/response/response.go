package response

import (
	"log"
	"net/http"

	"anoa.com/promptvault/pkg/apperror"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetUserID retrieves the authenticated user ID from the context
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	userIDStr, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	str, ok := userIDStr.(string)
	if !ok {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	userID, err := uuid.Parse(str)
	if err != nil {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	return userID, nil
}

// ResponseError standardized error response
func ResponseError(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)

	switch code {
	case http.StatusInternalServerError:
		// Internal detail stays in the logs.
		log.Printf("[Internal Error]: %v", err)
		c.JSON(code, gin.H{"error": apperror.ErrInternal.Error()})
		return
	case http.StatusServiceUnavailable:
		log.Printf("[Retryable]: %v", err)
		c.Header("Retry-After", "1")
		c.JSON(code, gin.H{"error": apperror.ErrConflict.Error(), "retryable": true})
		return
	}

	c.JSON(code, gin.H{"error": err.Error()})
}
