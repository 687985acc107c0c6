package utils

import (
	"io"

	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

// MustClose closes c and logs any error under name.
func MustClose(c io.Closer, name string, log logger.Logger) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("failed to close", logger.String("resource", name), logger.Error(err))
		return
	}
	log.Debug("closed", logger.String("resource", name))
}
