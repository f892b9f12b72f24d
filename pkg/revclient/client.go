// Package revclient is the Go client for the RevClarity API. It wraps the
// REST endpoints with retrying HTTP and provides the polling helpers UIs use
// to follow asynchronous work: WaitForOutcome for claim adjudication and
// WatchInbox for the OrthoPilot document inbox.
package revclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/revclarity/revclarity/internal/platform/poll"
)

// Default polling parameters.
const (
	OutcomeInterval = 2 * time.Second
	OutcomeMaxWait  = 30 * time.Second
	InboxInterval   = 5 * time.Second
)

// Polling types re-exported so importers can name them without reaching into
// an internal package.
type (
	Handle     = poll.Handle
	Resolution = poll.Resolution
)

const (
	ResolutionDone      = poll.ResolutionDone
	ResolutionTimeout   = poll.ResolutionTimeout
	ResolutionCancelled = poll.ResolutionCancelled
	ResolutionError     = poll.ResolutionError
)

var (
	ErrNotFound           = errors.New("resource not found")
	ErrConflict           = errors.New("request conflicts with the claim's current state")
	ErrSimulationInFlight = errors.New("a simulation is already being watched for this claim")
)

// APIError carries a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	// Token is sent as a Bearer credential when set.
	Token string
	// RetryMax bounds transport-level retries. Defaults to 3.
	RetryMax int
	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout time.Duration
	// OutcomePollInterval and OutcomePollMaxWait override the outcome polling
	// cadence. Zero means the package defaults.
	OutcomePollInterval time.Duration
	OutcomePollMaxWait  time.Duration
	// InboxPollInterval overrides the inbox polling cadence.
	InboxPollInterval time.Duration
}

// Client talks to a RevClarity server.
type Client struct {
	baseURL         string
	token           string
	http            *retryablehttp.Client
	poller          *poll.Poller
	outcomeInterval time.Duration
	outcomeMaxWait  time.Duration
	inboxInterval   time.Duration
}

// New builds a Client.
func New(cfg Config) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 3
	if cfg.RetryMax > 0 {
		rc.RetryMax = cfg.RetryMax
	}
	rc.HTTPClient.Timeout = 30 * time.Second
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}
	c := &Client{
		baseURL:         cfg.BaseURL,
		token:           cfg.Token,
		http:            rc,
		poller:          poll.New(),
		outcomeInterval: OutcomeInterval,
		outcomeMaxWait:  OutcomeMaxWait,
		inboxInterval:   InboxInterval,
	}
	if cfg.OutcomePollInterval > 0 {
		c.outcomeInterval = cfg.OutcomePollInterval
	}
	if cfg.OutcomePollMaxWait > 0 {
		c.outcomeMaxWait = cfg.OutcomePollMaxWait
	}
	if cfg.InboxPollInterval > 0 {
		c.inboxInterval = cfg.InboxPollInterval
	}
	return c
}

// Close stops every polling loop the client started.
func (c *Client) Close() {
	c.poller.Shutdown()
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, &payload)
		if payload.Message == "" {
			payload.Message = string(data)
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: payload.Message}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrNotFound, apiErr)
		case http.StatusConflict:
			return fmt.Errorf("%w: %v", ErrConflict, apiErr)
		}
		return apiErr
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Claim is the client-side view of a claim.
type Claim struct {
	ID                uuid.UUID  `json:"id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	Status            string     `json:"status"`
	PayerName         *string    `json:"payer_name,omitempty"`
	TotalChargeAmount *float64   `json:"total_charge_amount,omitempty"`
	PayerPaidAmount   *float64   `json:"payer_paid_amount,omitempty"`
	SubmissionDate    *time.Time `json:"submission_date,omitempty"`
	AdjudicationDate  *time.Time `json:"adjudication_date,omitempty"`
	DenialReason      *string    `json:"denial_reason,omitempty"`
	RecommendedAction *string    `json:"recommended_action,omitempty"`
}

// Document is the client-side view of an inbox document.
type Document struct {
	ID              uuid.UUID `json:"id"`
	FileName        string    `json:"file_name"`
	Status          string    `json:"status"`
	Classification  string    `json:"classification"`
	ProcessingError *string   `json:"processing_error,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

// GetClaim fetches one claim.
func (c *Client) GetClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	var cl Claim
	if err := c.do(ctx, http.MethodGet, "/api/v1/claims/"+id.String(), nil, &cl); err != nil {
		return nil, err
	}
	return &cl, nil
}

// ListClaims fetches claims, optionally filtered by status.
func (c *Client) ListClaims(ctx context.Context, status string) ([]Claim, error) {
	path := "/api/v1/claims"
	if status != "" {
		path += "?status=" + status
	}
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	var claims []Claim
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &claims); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

// SubmitClaim submits a draft claim.
func (c *Client) SubmitClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	var cl Claim
	if err := c.do(ctx, http.MethodPost, "/api/v1/claims/"+id.String()+"/submit", nil, &cl); err != nil {
		return nil, err
	}
	return &cl, nil
}

// ResubmitClaim re-submits a denied claim.
func (c *Client) ResubmitClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	var cl Claim
	if err := c.do(ctx, http.MethodPost, "/api/v1/claims/"+id.String()+"/resubmit", nil, &cl); err != nil {
		return nil, err
	}
	return &cl, nil
}

// SimulateOutcome asks the server to adjudicate the claim.
func (c *Client) SimulateOutcome(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/api/v1/claims/"+id.String()+"/simulate-outcome", nil, nil)
}

// OutcomeFunc receives the final claim when polling ends. claim is nil on
// timeout or cancellation.
type OutcomeFunc func(claim *Claim, res Resolution, err error)

// WaitForOutcome polls the claim every two seconds for up to thirty seconds,
// stopping as soon as the claim leaves submitted. Only one wait may be active
// per claim; a second call returns ErrSimulationInFlight. Timeout is
// delivered as ResolutionTimeout, not an error, and releases the guard.
func (c *Client) WaitForOutcome(ctx context.Context, id uuid.UUID, done OutcomeFunc) (*Handle, error) {
	var last *Claim
	fetch := func(ctx context.Context) (bool, error) {
		cl, err := c.GetClaim(ctx, id)
		if err != nil {
			return false, err
		}
		last = cl
		return cl.Status != "submitted", nil
	}

	handle, started := c.poller.Start(ctx, "simulate:"+id.String(), poll.Config{
		Interval:  c.outcomeInterval,
		MaxWait:   c.outcomeMaxWait,
		Immediate: true,
	}, fetch, func(res Resolution, err error) {
		if done != nil {
			done(last, res, err)
		}
	})
	if !started {
		return nil, ErrSimulationInFlight
	}
	return handle, nil
}

// Watching reports whether an outcome wait is active for the claim.
func (c *Client) Watching(id uuid.UUID) bool {
	return c.poller.Active("simulate:" + id.String())
}

// ListDocuments fetches inbox documents, optionally filtered by
// classification.
func (c *Client) ListDocuments(ctx context.Context, classification string) ([]Document, error) {
	path := "/api/v1/orthopilot/documents"
	if classification != "" {
		path += "?classification=" + classification
	}
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	var docs []Document
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &docs); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// InboxFunc receives each inbox snapshot. The list replaces the previous one
// wholesale. first is true only for the initial load so callers can render a
// loading state once and refresh silently afterwards.
type InboxFunc func(docs []Document, first bool)

// WatchInbox polls the document inbox every five seconds, unbounded, invoking
// onUpdate whenever the collection changes. Cancel the returned handle to
// stop watching.
func (c *Client) WatchInbox(ctx context.Context, onUpdate InboxFunc) (*Handle, error) {
	first := true
	var prev string

	fetch := func(ctx context.Context) (bool, error) {
		docs, err := c.ListDocuments(ctx, "")
		if err != nil {
			if first {
				return false, err
			}
			// Silent refreshes swallow transient errors and try again on the
			// next tick.
			return false, nil
		}
		snapshot, err := json.Marshal(docs)
		if err != nil {
			return false, err
		}
		if first || string(snapshot) != prev {
			prev = string(snapshot)
			onUpdate(docs, first)
			first = false
		}
		return false, nil
	}

	handle, started := c.poller.Start(ctx, "inbox", poll.Config{
		Interval:  c.inboxInterval,
		Immediate: true,
	}, fetch, nil)
	if !started {
		return nil, errors.New("inbox watch already active")
	}
	return handle, nil
}
