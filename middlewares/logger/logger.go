package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joy095/treasury/logger"
	"github.com/sirupsen/logrus"
)

// GinLogger logs one line per request through the application loggers.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		entry := logger.InfoLogger.WithFields(logrus.Fields{
			"status":    status,
			"method":    c.Request.Method,
			"path":      path,
			"ip":        c.ClientIP(),
			"latency":   time.Since(start).String(),
			"body_size": c.Writer.Size(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			logger.ErrorLogger.WithFields(entry.Data).Error("request failed")
		case status >= 400:
			logger.WarnLogger.WithFields(entry.Data).Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}
