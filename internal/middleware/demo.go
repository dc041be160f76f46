package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/utils"
)

// DemoGuard rejects mutating requests when DEMO_MODE is on. Used on the
// admin and config route groups so a public demo instance stays read-only.
type DemoGuard struct {
	enabled bool
	log     *logger.Logger
}

func NewDemoGuard(log *logger.Logger) *DemoGuard {
	return &DemoGuard{
		enabled: utils.GetEnvAsBool("DEMO_MODE", false, log),
		log:     log.With("middleware", "DemoGuard"),
	}
}

func (g *DemoGuard) BlockMutations() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.enabled && c.Request.Method != http.MethodGet {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "disabled in demo mode"})
			return
		}
		c.Next()
	}
}
