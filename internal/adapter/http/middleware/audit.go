package middleware

import (
	"encoding/json"
	"strings"

	"exchange-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// AuditTrail creates an audit middleware that records successful write
// operations. It maps HTTP methods and paths to audit actions.
func AuditTrail(sink ports.AuditSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" || c.Request.Method == "OPTIONS" {
			return
		}

		action, resourceType := mapPathToAction(c.Request.URL.Path)
		if action == "" {
			return
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		sink.Emit(c.Request.Context(), &ports.AuditEvent{
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
		})
	}
}

func mapPathToAction(path string) (string, string) {
	switch {
	case path == "/api/v1/wallets":
		return "wallet.create", "wallet"
	case strings.HasSuffix(path, "/deposit"):
		return "wallet.deposit", "wallet"
	case strings.HasSuffix(path, "/withdraw"):
		return "wallet.withdraw", "wallet"
	case strings.HasSuffix(path, "/transfer"):
		return "wallet.transfer", "wallet"
	case path == "/api/v1/quotes":
		return "quote.create", "quote"
	case path == "/api/v1/exchanges":
		return "exchange.execute", "transaction"
	}
	return "", ""
}
