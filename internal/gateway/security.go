package gateway

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/tgifai/netguard/internal/pkg/logs"
)

const bearerPrefix = "Bearer "

// apiKeyAuth guards the API group with a static bearer token. An empty key
// leaves the API open, which is only sensible on a loopback bind.
func apiKeyAuth(apiKey string) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if apiKey == "" {
			c.Next(ctx)
			return
		}

		token, ok := parseBearer(string(c.GetHeader("Authorization")))
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			logs.CtxWarn(ctx, "[security] rejected api call from %s to %s", c.ClientIP(), c.Path())
			c.AbortWithStatusJSON(consts.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		c.Next(ctx)
	}
}

func parseBearer(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
