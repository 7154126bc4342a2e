package relay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bidline/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// Signature headers sent with every webhook delivery.
const (
	HeaderEvent     = "X-Bidline-Event"
	HeaderDelivery  = "X-Bidline-Delivery"
	HeaderProject   = "X-Bidline-Project"
	HeaderSignature = "X-Bidline-Signature"
)

// WebhookSink POSTs each event as JSON. With a secret set the body is
// signed with HMAC-SHA256 in the X-Bidline-Signature header.
type WebhookSink struct {
	name   string
	url    string
	secret string
	client *http.Client
}

func NewWebhookSink(name, url, secret string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if strings.TrimSpace(name) == "" {
		name = url
	}
	return &WebhookSink{name: "webhook:" + name, url: url, secret: secret, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSink) Name() string { return s.name }

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header value produced by Sign.
func Verify(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

func (s *WebhookSink) Deliver(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(NewEnvelope(evt))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, evt.Type)
	req.Header.Set(HeaderDelivery, strconv.FormatInt(evt.ID, 10))
	if evt.ProjectID != "" {
		req.Header.Set(HeaderProject, evt.ProjectID)
	}
	if strings.TrimSpace(s.secret) != "" {
		req.Header.Set(HeaderSignature, Sign(s.secret, data))
	}
	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
