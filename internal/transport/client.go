package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"authflow/internal/configuration"
	apierrors "authflow/internal/errors"
	"authflow/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Client executes requests against the identity service.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

func New(config models.IdentityConfiguration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.L()
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = configuration.AppName
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(config.APIURL, "/")).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		SetLogger(logger.Sugar())

	if config.RequestTimeout > 0 {
		httpClient.SetTimeout(time.Duration(config.RequestTimeout) * time.Second)
	}

	return &Client{http: httpClient, logger: logger}
}

// Call sends body (when non-nil) as JSON to path and decodes a 2xx answer into T.
// A bearer token, when given, is sent in the Authorization header.
//
// Non-2xx answers become a *apierrors.TransportError carrying the body's "error" field,
// or the status phrase when the body has none. A 2xx body that is not valid JSON
// decodes as the zero value of T.
func Call[T any](ctx context.Context, c *Client, method, path string, body any, bearer string) (T, error) {
	var out T

	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.NewString())
	if body != nil {
		req.SetBody(body)
	}
	if bearer != "" {
		req.SetAuthToken(bearer)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Warn("Identity service unreachable",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return out, apierrors.NewTransportError(0, networkMessage(err))
	}

	if !resp.IsSuccess() {
		message := errorMessage(resp.StatusCode(), resp.Status(), resp.Body())
		c.logger.Warn("Identity service rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode()),
			zap.String("error", message))
		return out, apierrors.NewTransportError(resp.StatusCode(), message)
	}

	if err = json.Unmarshal(resp.Body(), &out); err != nil {
		c.logger.Debug("Unparseable response body treated as empty",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode()))
		var empty T
		return empty, nil
	}

	return out, nil
}

func errorMessage(status int, statusLine string, body []byte) string {
	var payload models.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if phrase := statusPhrase(status, statusLine); phrase != "" {
		return phrase
	}
	return "Request failed"
}

// statusPhrase returns the reason phrase the server sent, such as "Down for maintenance"
// from "503 Down for maintenance", else the standard text for status.
func statusPhrase(status int, statusLine string) string {
	phrase := strings.TrimSpace(strings.TrimPrefix(statusLine, strconv.Itoa(status)))
	if phrase != "" {
		return phrase
	}
	return http.StatusText(status)
}

func networkMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "Request cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	default:
		return err.Error()
	}
}
