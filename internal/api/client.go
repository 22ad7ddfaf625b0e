// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP client for the repochat backend.
//
// The backend exposes conversation-scoped endpoints for repository
// ingestion, repository content, message history, and a streaming chat
// endpoint that delivers assistant output as Server-Sent Events. All
// requests carry a bearer credential; errors arrive as {"detail": "..."}
// bodies, which this package maps onto sentinel errors.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/repochat-tui/internal/config"
	"github.com/jeranaias/repochat-tui/internal/model"
)

// Configuration constants for backend requests.
const (
	// DefaultTimeout is the default timeout for non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for transient errors.
	DefaultMaxRetries = 3

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	// Shared HTTP client with connection pooling for all backend requests.
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// sharedStreamingClient is used for streaming requests (no timeout, context-controlled).
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		// No timeout for streaming - controlled via context
	}
)

// =============================================================================
// CLIENT
// =============================================================================

// Client is an HTTP client for the repochat backend.
type Client struct {
	baseURL    string
	token      string
	userID     string
	maxRetries int

	// statusLimiter paces ingestion status polls so retries and the poller
	// cannot stampede the backend.
	statusLimiter *rate.Limiter
}

// NewClient creates a backend client from configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:       strings.TrimSuffix(cfg.Backend.URL, "/"),
		token:         strings.TrimSpace(cfg.Backend.Token),
		userID:        cfg.Backend.UserID,
		maxRetries:    cfg.Backend.MaxRetries,
		statusLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
}

// WithBaseURL sets a custom base URL, for tests.
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimSuffix(url, "/")
	return c
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// setHeaders sets the required headers for backend requests.
func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "repochat/0.1.0")
}

// logRequest logs an API request without exposing sensitive data.
func (c *Client) logRequest(req *http.Request) {
	log.Printf("API Request: %s %s", req.Method, req.URL.Path)
	// Don't log headers (may contain auth)
	// Don't log body (may contain user content)
}

// logResponse logs an API response with duration.
func (c *Client) logResponse(resp *http.Response, duration time.Duration) {
	log.Printf("API Response: %d %s (%v)", resp.StatusCode, resp.Status, duration)
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// readResponse reads the response body with size limits.
//
// SECURITY: Response size limit prevents memory exhaustion attacks.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// Check if we hit the limit (response was truncated)
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}

	return body, nil
}

// handleErrorResponse converts backend error responses to Go errors.
// FastAPI error bodies carry a single "detail" field.
func handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	detail := ""
	if err := json.Unmarshal(body, &errResp); err == nil {
		detail = errResp.Detail
	}

	switch statusCode {
	case http.StatusUnauthorized:
		if detail != "" {
			return fmt.Errorf("%w: %s", ErrAuthFailed, detail)
		}
		return ErrAuthFailed
	case http.StatusForbidden:
		if detail != "" {
			return fmt.Errorf("%w: %s", ErrForbidden, detail)
		}
		return ErrForbidden
	case http.StatusNotFound:
		if detail != "" {
			return fmt.Errorf("%w: %s", ErrNotFound, detail)
		}
		return ErrNotFound
	case http.StatusTooManyRequests:
		if detail != "" {
			return fmt.Errorf("%w: %s", ErrRateLimited, detail)
		}
		return ErrRateLimited
	case http.StatusBadRequest:
		// The backend rejects chat before ingestion has completed.
		if strings.Contains(strings.ToLower(detail), "index") {
			return fmt.Errorf("%w: %s", ErrNotIndexed, detail)
		}
		return &APIError{Status: statusCode, Detail: detail}
	default:
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
		return &APIError{Status: statusCode, Detail: detail}
	}
}

// isRetryable determines if an error should trigger a retry.
// 4xx responses are never retried; the request will not get better.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrNotIndexed) {
		return false
	}
	// Transport errors (connection refused, reset) are retryable.
	return true
}

// calculateBackoff returns the delay to wait before the next retry.
func calculateBackoff(attempt int) time.Duration {
	// Exponential backoff: 500ms, 1000ms, 2000ms, etc.
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// doJSON performs a request with retry and decodes the JSON response into out.
// Pass a nil out to discard the body.
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, out any) error {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	retries := c.maxRetries
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		// Apply backoff delay after first attempt
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		err := c.doOnce(ctx, method, path, bodyBytes, out)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doOnce performs a single request against the backend.
//
// PERFORMANCE: Uses shared HTTP client with connection pooling.
func (c *Client) doOnce(ctx context.Context, method, path string, bodyBytes []byte, out any) error {
	var reqBody io.Reader
	if bodyBytes != nil {
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	c.logRequest(req)

	startTime := time.Now()
	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	c.logResponse(resp, time.Since(startTime))

	body, err := readResponse(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return handleErrorResponse(resp.StatusCode, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// INGESTION
// =============================================================================

// ingestResponse is the body returned by both ingestion endpoints.
type ingestResponse struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
}

// IngestStatus is a point-in-time view of ingestion for a conversation.
type IngestStatus struct {
	State model.IngestState
	// Progress is the backend-reported percentage, nil when the backend
	// omitted it for this poll.
	Progress *float64
}

// BeginIngest asks the backend to start ingesting the repository behind a
// conversation. The backend short-circuits when the repository is already
// indexed, reporting completed instead of starting over.
func (c *Client) BeginIngest(ctx context.Context, conversationID string) (model.IngestState, error) {
	var resp ingestResponse
	if err := c.doJSON(ctx, http.MethodPost, "/ingest/"+conversationID, nil, &resp); err != nil {
		return model.IngestFailed, err
	}

	state, err := model.ParseIngestState(resp.Status)
	if err != nil {
		return model.IngestFailed, fmt.Errorf("begin ingest: %w", err)
	}
	return state, nil
}

// GetIngestStatus fetches the current ingestion status for a conversation.
// Polls are paced through the client's rate limiter.
func (c *Client) GetIngestStatus(ctx context.Context, conversationID string) (IngestStatus, error) {
	if err := c.statusLimiter.Wait(ctx); err != nil {
		return IngestStatus{State: model.IngestFailed}, err
	}

	var resp ingestResponse
	if err := c.doJSON(ctx, http.MethodGet, "/ingest/"+conversationID+"/status", nil, &resp); err != nil {
		return IngestStatus{State: model.IngestFailed}, err
	}

	state, err := model.ParseIngestState(resp.Status)
	if err != nil {
		return IngestStatus{State: model.IngestFailed}, fmt.Errorf("ingest status: %w", err)
	}
	return IngestStatus{State: state, Progress: resp.Progress}, nil
}

// =============================================================================
// REPOSITORY
// =============================================================================

// FetchRepo downloads the full file tree for a conversation's repository.
func (c *Client) FetchRepo(ctx context.Context, conversationID string) (*model.CachedRepository, error) {
	var repo model.CachedRepository
	if err := c.doJSON(ctx, http.MethodGet, "/repo/"+conversationID, nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// repoNameResponse is the body of the repo-name endpoint.
type repoNameResponse struct {
	Name string `json:"name"`
}

// FetchRepoName fetches the display name of a conversation's repository.
func (c *Client) FetchRepoName(ctx context.Context, conversationID string) (string, error) {
	var resp repoNameResponse
	if err := c.doJSON(ctx, http.MethodGet, "/repo/"+conversationID+"/name", nil, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ChatStatus describes a validated conversation.
type ChatStatus struct {
	IsBookmarked bool `json:"is_bookmarked"`
}

// Validate checks that a conversation exists and belongs to this user.
// Returns ErrNotFound or ErrForbidden for the terminal cases.
func (c *Client) Validate(ctx context.Context, conversationID string) (*ChatStatus, error) {
	var status ChatStatus
	body := map[string]string{"user_id": c.userID}
	if err := c.doJSON(ctx, http.MethodPost, "/chat/"+conversationID+"/validate", body, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// historyResponse is the body of the message history endpoint. The backend
// does not assign message identifiers; clients mint their own.
type historyResponse struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// FetchMessages fetches the persisted conversation history, oldest first.
func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var resp historyResponse
	if err := c.doJSON(ctx, http.MethodGet, "/chat/"+conversationID+"/fetch/messages", nil, &resp); err != nil {
		return nil, err
	}

	messages := make([]model.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		messages = append(messages, model.Message{
			Role:    model.Role(m.Role),
			Content: m.Content,
		})
	}
	return messages, nil
}

// RecentChat is a single entry in the user's recent conversations.
type RecentChat struct {
	ConversationID string `json:"conversation_id"`
	RepoName       string `json:"repo_name"`
	GithubURL      string `json:"github_url"`
	IsBookmarked   bool   `json:"is_bookmarked"`
	LastActivity   string `json:"last_activity"`
}

// recentsResponse is the body of the recents endpoint.
type recentsResponse struct {
	Chats []RecentChat `json:"chats"`
}

// Recents lists the user's recent conversations, most recent first.
func (c *Client) Recents(ctx context.Context) ([]RecentChat, error) {
	var resp recentsResponse
	body := map[string]string{"user_id": c.userID}
	if err := c.doJSON(ctx, http.MethodPost, "/chat/recents", body, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// SetBookmark toggles the bookmark flag on a conversation.
func (c *Client) SetBookmark(ctx context.Context, conversationID string, bookmarked bool) error {
	body := map[string]any{
		"user_id":       c.userID,
		"is_bookmarked": bookmarked,
	}
	return c.doJSON(ctx, http.MethodPost, "/chat/"+conversationID+"/bookmark", body, nil)
}

// Delete removes a conversation and its history from the backend.
func (c *Client) Delete(ctx context.Context, conversationID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/chat/"+conversationID, nil, nil)
}
