package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "convertax/internal/errors"
	"convertax/internal/logger"
)

// ErrorHandler returns a Gin middleware that converts errors set on the Gin
// context into consistent JSON error responses. AppErrors are returned with
// their code and message; unexpected errors are logged and return a generic
// internal error to avoid leaking details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		writeError(c, c.Errors.Last().Err)
	}
}

// Recovery turns panics into INTERNAL_ERROR responses.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Get().Errorw("panic recovered",
			"panic", recovered,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		abortWithError(c, apperrors.ErrInternalServer)
	})
}

func abortWithError(c *gin.Context, err error) {
	writeError(c, err)
	c.Abort()
}

func writeError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		// Unexpected error: log full details, return generic message
		logger.Get().Errorw("unexpected error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		appErr = apperrors.ErrInternalServer
	} else if appErr.Internal != nil {
		logger.Get().Errorw("app error",
			"code", appErr.Code,
			"message", appErr.Message,
			"internal", appErr.Internal.Error(),
			"path", c.Request.URL.Path,
		)
	}

	c.JSON(appErr.StatusCode, gin.H{
		"error": gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		},
	})
}
