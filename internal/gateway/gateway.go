package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	hzConfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	prometheus "github.com/hertz-contrib/monitor-prometheus"

	"github.com/tgifai/netguard/internal/config"
	"github.com/tgifai/netguard/internal/pkg/logs"
	promreg "github.com/tgifai/netguard/internal/pkg/prometheus"
	"github.com/tgifai/netguard/internal/security/egress"
)

const metricsPath = "/metrics"

// Gateway exposes the egress guard over HTTP: ad-hoc checks, guarded fetches
// and audit counters.
type Gateway struct {
	cfg        config.GatewayConfig
	guard      *egress.Guard
	httpServer *hzServer.Hertz
	limiter    *fetchLimiter

	stopOnce sync.Once
	stopErr  error
}

func NewGateway(cfg config.GatewayConfig, guard *egress.Guard) *Gateway {
	bind := cfg.Bind
	if bind == "" {
		bind = "127.0.0.1:8088"
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	hlog.SetLogger(logs.NewHlogLogger(logs.DefaultLogger()))

	opts := []hzConfig.Option{
		hzServer.WithHostPorts(bind),
		hzServer.WithReadTimeout(timeout),
		hzServer.WithWriteTimeout(timeout),
		hzServer.WithExitWaitTime(5 * time.Second),
		hzServer.WithMaxRequestBodySize(maxBodyBytes(cfg) + 64*1024),
	}
	if cfg.MetricsBind != "" {
		opts = append(opts, hzServer.WithTracer(prometheus.NewServerTracer(
			cfg.MetricsBind, metricsPath,
			prometheus.WithRegistry(promreg.GetRegistry()),
		)))
	}

	gw := &Gateway{
		cfg:        cfg,
		guard:      guard,
		httpServer: hzServer.Default(opts...),
		limiter:    newFetchLimiter(cfg.MaxConcurrentFetches),
	}
	gw.registerRoutes()
	return gw
}

func (gw *Gateway) registerRoutes() {
	gw.httpServer.GET("/health", gw.handleHealth)

	api := gw.httpServer.Group("/api/v1", apiKeyAuth(gw.cfg.APIKey))
	api.GET("/stats", gw.handleStats)
	api.POST("/check", gw.handleCheck)
	api.POST("/fetch", gw.handleFetch)
}

func (gw *Gateway) Start(ctx context.Context) error {
	if gw.guard == nil {
		return fmt.Errorf("gateway requires an egress guard")
	}
	logs.CtxInfo(ctx, "[gateway] listening on %s, guarded transports: %v", gw.cfg.Bind, gw.guard.Installed())
	if gw.cfg.MetricsBind != "" {
		logs.CtxInfo(ctx, "[gateway] metrics exposed on %s%s", gw.cfg.MetricsBind, metricsPath)
	}

	go gw.httpServer.Spin()
	return nil
}

func (gw *Gateway) Stop(ctx context.Context) error {
	gw.stopOnce.Do(func() {
		if err := gw.httpServer.Shutdown(ctx); err != nil {
			logs.CtxWarn(ctx, "[gateway] shutdown http server error: %v", err)
			gw.stopErr = err
		}
		logs.CtxInfo(ctx, "[gateway] all resources stopped")
	})
	return gw.stopErr
}

func maxBodyBytes(cfg config.GatewayConfig) int {
	mib := cfg.MaxBodyMiB
	if mib <= 0 {
		mib = 5
	}
	return mib * 1024 * 1024
}
