package processor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/madcok-co/consumerd/internal/apierr"
)

// StreamingForwarder sends each record's value to config.url over HTTP,
// retrying non-2xx responses with a bounded budget (§4.A). The retry
// policy itself comes from eapache/go-resiliency, the same dependency
// sarama already pulls in for its own broker retries.
type StreamingForwarder struct {
	id      string
	url     string
	method  string
	headers map[string]string
	client  *http.Client
	retrier *retrier.Retrier
}

// NewStreamingForwarder builds the streaming_forwarder Processor
// variant. config.method defaults to POST; config.headers is an
// optional map of extra request headers.
func NewStreamingForwarder(id string, config map[string]any) (Processor, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, apierr.New(apierr.BadConfig, "streaming_forwarder: config.url is required")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	headers := map[string]string{}
	if raw, ok := config["headers"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}

	backoff := []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 500 * time.Millisecond}

	return &StreamingForwarder{
		id:      id,
		url:     url,
		method:  method,
		headers: headers,
		client:  &http.Client{Timeout: 10 * time.Second},
		retrier: retrier.New(backoff, retrier.DefaultClassifier{}),
	}, nil
}

func (p *StreamingForwarder) ID() string { return p.id }

func (p *StreamingForwarder) Process(ctx context.Context, rec Record) error {
	return p.retrier.RunCtx(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, p.method, p.url, bytes.NewReader(rec.Value))
		if err != nil {
			return fmt.Errorf("streaming_forwarder: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		for k, v := range p.headers {
			req.Header.Set(k, v)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("streaming_forwarder: request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("streaming_forwarder: non-2xx response: %d", resp.StatusCode)
		}
		return nil
	})
}

func (p *StreamingForwarder) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

var _ Processor = (*StreamingForwarder)(nil)
