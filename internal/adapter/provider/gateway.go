package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kzeybek/push-fanout/internal/domain"
	"github.com/kzeybek/push-fanout/pkg/circuitbreaker"
	"github.com/kzeybek/push-fanout/pkg/tracing"
)

// GatewayTransport pushes a message to one device through an HTTP push
// gateway. The gateway is a black box: anything other than a 2xx answer is
// a failed delivery. A circuit breaker sheds load when the gateway is down
// so a drain run fails fast instead of timing out per device.
type GatewayTransport struct {
	gatewayURL string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

func NewGatewayTransport(gatewayURL string) *GatewayTransport {
	return &GatewayTransport{
		gatewayURL: gatewayURL,
		httpClient: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: circuitbreaker.New("push-gateway"),
	}
}

type pushRequest struct {
	Token   string `json:"token"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (t *GatewayTransport) Send(ctx context.Context, title, message, token string) error {
	_, err := t.breaker.Execute(func() (any, error) {
		return nil, t.doSend(ctx, title, message, token)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", domain.ErrCircuitOpen, err)
	}
	return err
}

func (t *GatewayTransport) doSend(ctx context.Context, title, message, token string) error {
	ctx, span := tracing.Tracer().Start(ctx, "gateway.push")
	defer span.End()

	span.SetAttributes(attribute.String("gateway.url", t.gatewayURL))

	body, err := json.Marshal(pushRequest{Token: token, Title: title, Message: message})
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.gatewayURL, bytes.NewReader(body))
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		gatewayErr := fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
		tracing.RecordError(span, gatewayErr)
		return gatewayErr
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("push rejected: status %d", resp.StatusCode)
		tracing.RecordError(span, statusErr)
		return statusErr
	}

	return nil
}
