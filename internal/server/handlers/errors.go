package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/rabbitry/internal/repository"
	"github.com/mamadbah2/rabbitry/internal/service/breeding"
)

// writeError maps domain errors onto HTTP statuses.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var rej *breeding.RejectionError
	switch {
	case errors.As(err, &rej):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": rej.Error(), "reason": rej.Reason})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, logger *zap.Logger, err error) {
	logger.Warn("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}
