package httpadapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"meridian/contexts/channel-sync/outbound-sync-service/ports"
	"meridian/internal/shared/soapenv"
)

const soapContentType = `application/soap+xml; charset=utf-8; action="` + soapenv.DefaultAction + `"`

// maxResponseBytes bounds how much of a channel response is read. Well-formed
// acks are far smaller.
const maxResponseBytes = 4 << 20

// ChannelTransport posts SOAP envelopes to channel endpoints over a pooled
// HTTP client.
type ChannelTransport struct {
	client *http.Client
}

func NewChannelTransport(client *http.Client) *ChannelTransport {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &ChannelTransport{client: client}
}

func (t *ChannelTransport) Send(ctx context.Context, endpoint string, envelope []byte, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("build channel request: %w", err)
	}
	req.Header.Set("Content-Type", soapContentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read channel response: %w", err)
	}
	// SOAP 1.2 faults arrive with non-2xx codes and a parsable envelope, so
	// the body is returned either way. An empty error body keeps the status.
	if resp.StatusCode >= 300 && len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("channel endpoint returned status %d", resp.StatusCode)
	}
	return body, nil
}

var _ ports.Transport = (*ChannelTransport)(nil)
