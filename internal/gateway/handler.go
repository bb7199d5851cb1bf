package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/gg/gconv"
	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/tgifai/netguard/internal/pkg/logs"
	pkgutils "github.com/tgifai/netguard/internal/pkg/utils"
	"github.com/tgifai/netguard/internal/security/egress"
)

const (
	defaultFetchTimeout = 30 * time.Second
	maxFetchTimeout     = 120 * time.Second
	maxResponseChar     = 50000
)

var allowedFetchMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodHead:   true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

type checkResponse struct {
	Decision egress.Decision `json:"decision"`
	Reason   egress.Reason   `json:"reason,omitempty"`
	Message  string          `json:"message,omitempty"`
	Warning  string          `json:"warning,omitempty"`
	Method   string          `json:"method,omitempty"`
	URL      string          `json:"url,omitempty"`
	Scheme   string          `json:"scheme,omitempty"`
	Host     string          `json:"host,omitempty"`
	Port     uint16          `json:"port,omitempty"`
}

type fetchResponse struct {
	Status    int               `json:"status"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
	Length    int               `json:"length"`
	Truncated bool              `json:"truncated"`
}

type errorResponse struct {
	Error  string        `json:"error"`
	Reason egress.Reason `json:"reason,omitempty"`
}

func (gw *Gateway) handleHealth(_ context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"status":     "ok",
		"transports": gw.guard.Installed(),
	})
}

func (gw *Gateway) handleStats(_ context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{
		"audit":           gw.guard.Audit().Stats(),
		"dedup_size":      gw.guard.Audit().Dedup().Len(),
		"fetches_running": gw.limiter.inFlight(),
	})
}

func (gw *Gateway) handleCheck(ctx context.Context, c *app.RequestContext) {
	args, ok := decodeArgs(c)
	if !ok {
		return
	}

	res := gw.guard.CheckValue(egress.WithCaller(ctx, "api.check"), gconv.To[string](args["method"]), args["url"])
	status := consts.StatusOK
	if res.Reason == egress.ReasonInvalidInput {
		status = consts.StatusBadRequest
	}
	c.JSON(status, newCheckResponse(res))
}

func newCheckResponse(res egress.Result) checkResponse {
	out := checkResponse{
		Decision: res.Decision,
		Reason:   res.Reason,
		Message:  res.Message,
		Warning:  res.Warning,
	}
	if req := res.Request; req != nil {
		out.Method = req.Method
		out.URL = req.RawURL
		out.Scheme = req.Scheme
		out.Host = req.Host
		out.Port = req.Port
	}
	return out
}

func (gw *Gateway) handleFetch(ctx context.Context, c *app.RequestContext) {
	args, ok := decodeArgs(c)
	if !ok {
		return
	}
	ctx = egress.WithCaller(ctx, "api.fetch")

	method := strings.ToUpper(strings.TrimSpace(gconv.To[string](args["method"])))
	if method == "" {
		method = http.MethodGet
	}
	if !allowedFetchMethods[method] {
		c.JSON(consts.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("unsupported method %q; allowed: GET, HEAD, POST, PUT, PATCH, DELETE", method),
		})
		return
	}

	rawURL, isString := args["url"].(string)
	if !isString {
		res := gw.guard.CheckValue(ctx, method, args["url"])
		c.JSON(consts.StatusBadRequest, errorResponse{Error: res.Message, Reason: res.Reason})
		return
	}

	timeout := defaultFetchTimeout
	if v := gconv.To[int](args["timeout"]); v > 0 {
		timeout = time.Duration(v) * time.Second
		if timeout > maxFetchTimeout {
			timeout = maxFetchTimeout
		}
	}

	client, err := gw.guard.NewHTTPClient()
	if err != nil {
		c.JSON(consts.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	if err := gw.limiter.acquire(ctx); err != nil {
		c.JSON(consts.StatusServiceUnavailable, errorResponse{Error: "too many fetches in flight"})
		return
	}
	defer gw.limiter.release()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := gconv.To[string](args["body"])
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, strings.TrimSpace(rawURL), bodyReader)
	if err != nil {
		// Malformed urls still land in the audit trail.
		res := gw.guard.Check(ctx, method, rawURL)
		c.JSON(consts.StatusBadRequest, errorResponse{Error: fmt.Sprintf("create request: %v", err), Reason: res.Reason})
		return
	}
	if hdrs, ok := args["headers"].(map[string]interface{}); ok {
		for k, v := range hdrs {
			req.Header.Set(k, gconv.To[string](v))
		}
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		status, out := fetchError(err)
		c.JSON(status, out)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxBodyBytes(gw.cfg))))
	if err != nil {
		c.JSON(consts.StatusBadGateway, errorResponse{Error: fmt.Sprintf("read response: %v", err)})
		return
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	content, truncated := pkgutils.Truncate(string(respBody), maxResponseChar)
	out := fetchResponse{
		Status:    resp.StatusCode,
		Headers:   respHeaders,
		Body:      content,
		Length:    len(content),
		Truncated: truncated,
	}

	logs.CtxInfo(ctx, "[api:fetch] %s %s -> %d (%d chars, truncated=%v)",
		method, req.URL.Redacted(), resp.StatusCode, out.Length, truncated)
	c.JSON(consts.StatusOK, out)
}

// fetchError maps a client error to a status: denials are 403 (400 for
// unusable input), everything else is an upstream failure.
func fetchError(err error) (int, errorResponse) {
	if errors.Is(err, egress.ErrDenied) {
		reason := egress.ReasonOf(err)
		if reason == egress.ReasonInvalidInput {
			return consts.StatusBadRequest, errorResponse{Error: err.Error(), Reason: reason}
		}
		return consts.StatusForbidden, errorResponse{Error: err.Error(), Reason: reason}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return consts.StatusGatewayTimeout, errorResponse{Error: fmt.Sprintf("request failed: %v", err)}
	}
	return consts.StatusBadGateway, errorResponse{Error: fmt.Sprintf("request failed: %v", err)}
}

func decodeArgs(c *app.RequestContext) (map[string]interface{}, bool) {
	var args map[string]interface{}
	if err := sonic.Unmarshal(c.GetRequest().Body(), &args); err != nil || args == nil {
		c.JSON(consts.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return nil, false
	}
	return args, true
}
