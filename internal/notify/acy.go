// Package notify subscribes paying sponsors to the mailing list.
//
// Subscriptions run outside the request path: a paid order enqueues an asynq
// task and the worker calls the AcyMailing API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/sponsor-api/internal/obs"
)

const defaultListID = 2

// ErrNotConfigured is returned when the mailing API url or key is missing.
var ErrNotConfigured = errors.New("notify: mailing list not configured")

// Doer performs outbound HTTP calls; resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Subscriber is one sponsor to add to the list.
type Subscriber struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	OrderID string `json:"orderId"`
	Source  string `json:"source"`
}

// AcyClient talks to the AcyMailing v7 subscribe endpoint.
type AcyClient struct {
	URL    string
	APIKey string
	// ListID is parsed leniently; blank or garbage falls back to list 2.
	ListID string
	HTTP   Doer
	Logger zerolog.Logger
}

type acyUser struct {
	Email  string            `json:"email"`
	Name   string            `json:"name"`
	Fields map[string]string `json:"fields"`
}

type acyPayload struct {
	Users   []acyUser `json:"users"`
	ListIDs []int     `json:"listIds"`
	Status  int       `json:"status"`
	APIKey  string    `json:"apiKey,omitempty"`
}

// Configured reports whether url and key are set.
func (c *AcyClient) Configured() bool {
	return c != nil && strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.APIKey) != ""
}

func (c *AcyClient) listID() int {
	if id := cast.ToInt(strings.TrimSpace(c.ListID)); id > 0 {
		return id
	}
	return defaultListID
}

// Subscribe upserts sub into the configured list. The token is sent as the
// X-Acy-Token header first; on 401 or 403 the request is repeated once with
// the key in the body for gateways that expect it there.
func (c *AcyClient) Subscribe(ctx context.Context, sub Subscriber) error {
	ctx, span := otel.Tracer("notify").Start(ctx, "AcyClient.Subscribe")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", sub.OrderID))

	email := strings.TrimSpace(sub.Email)
	if email == "" {
		obs.Inc(obs.MailingSubscribeTotal, "skipped")
		return nil
	}
	if !c.Configured() {
		obs.Inc(obs.MailingSubscribeTotal, "skipped")
		return ErrNotConfigured
	}
	if c.HTTP == nil {
		return errors.New("notify: http client not configured")
	}

	source := strings.TrimSpace(sub.Source)
	if source == "" {
		source = "Sponsor"
	}
	payload := acyPayload{
		Users: []acyUser{{
			Email:  email,
			Name:   strings.TrimSpace(sub.Name),
			Fields: map[string]string{"source": source, "orderId": sub.OrderID},
		}},
		ListIDs: []int{c.listID()},
		Status:  1,
	}

	status, body, err := c.post(ctx, payload, true)
	if err == nil && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
		payload.APIKey = c.APIKey
		status, body, err = c.post(ctx, payload, false)
	}
	if err != nil {
		obs.Inc(obs.MailingSubscribeTotal, "error")
		span.RecordError(err)
		return err
	}
	if status < 200 || status > 299 {
		obs.Inc(obs.MailingSubscribeTotal, "rejected")
		c.Logger.Error().Int("status", status).Str("body", body).Str("order_id", sub.OrderID).Msg("acy subscribe rejected")
		return fmt.Errorf("notify: acy subscribe returned %d", status)
	}
	obs.Inc(obs.MailingSubscribeTotal, "ok")
	c.Logger.Info().Str("order_id", sub.OrderID).Msg("sponsor subscribed to mailing list")
	return nil
}

func (c *AcyClient) post(ctx context.Context, payload acyPayload, tokenHeader bool) (int, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(data))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if tokenHeader {
		req.Header.Set("X-Acy-Token", c.APIKey)
	}
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return 0, "", fmt.Errorf("notify: acy request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(body), nil
}
