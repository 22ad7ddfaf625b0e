// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
)

// =============================================================================
// STREAMING TYPES
// =============================================================================

// MaxFrameSize is the maximum allowed size for a single SSE frame (64KB).
const MaxFrameSize = 64 * 1024

// Frame is a single SSE frame from the chat endpoint. Each frame carries the
// FULL accumulated assistant text so far, not a delta; later frames supersede
// earlier ones.
type Frame struct {
	Content string `json:"content"`
}

// FrameCallback is called for each well-formed frame, in arrival order.
type FrameCallback func(frame Frame)

// SendRequest is the body of the chat message endpoint.
type SendRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
	// SelectedContext maps file paths to the excerpts the user attached,
	// in selection order.
	SelectedContext map[string][]string `json:"selected_context,omitempty"`
}

// sendBody is the wire shape, which also carries the user identifier.
type sendBody struct {
	UserID          string              `json:"user_id"`
	Message         string              `json:"message"`
	Model           string              `json:"model"`
	SelectedContext map[string][]string `json:"selected_context,omitempty"`
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReader(r),
	}
}

// ReadEvent reads the next SSE event from the stream.
// Returns the event type and data; the event type is empty for chat frames.
// Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte
	var size int

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// If we have data, return it before EOF
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		size += len(line)
		if size > MaxFrameSize {
			return "", nil, fmt.Errorf("sse frame too large: %d bytes", size)
		}

		// Trim trailing newline and carriage return
		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		// Parse field
		if bytes.HasPrefix(line, []byte("event:")) {
			eventType = string(bytes.TrimSpace(line[6:]))
		} else if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// Ignore other fields (id:, retry:, comments starting with :)
	}
}

// =============================================================================
// STREAMING SEND
// =============================================================================

// SendMessage posts a user message and consumes the assistant's streamed
// reply. The callback runs once per well-formed frame, in arrival order;
// malformed frames are logged and skipped without ending the stream.
// Transport failures mid-stream are returned to the caller.
//
// Streaming requests are never retried: a retry would make the backend
// process the user message twice.
func (c *Client) SendMessage(ctx context.Context, conversationID string, req SendRequest, callback FrameCallback) error {
	body := sendBody{
		UserID:          c.userID,
		Message:         req.Message,
		Model:           req.Model,
		SelectedContext: req.SelectedContext,
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/"+conversationID+"/message", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	c.logRequest(httpReq)

	// PERFORMANCE: Use shared streaming client (timeout handled via context)
	resp, err := sharedStreamingClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Handle error responses
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return handleErrorResponse(resp.StatusCode, body)
	}

	return processStream(ctx, resp.Body, callback)
}

// processStream reads the SSE stream sequentially until EOF.
func processStream(ctx context.Context, body io.Reader, callback FrameCallback) error {
	reader := NewSSEReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		frame, err := ParseFrame(data)
		if err != nil {
			// Skip malformed frames; the next frame carries the full
			// accumulated text anyway.
			log.Printf("skipping malformed stream frame: %v", err)
			continue
		}

		callback(frame)
	}
}

// ParseFrame decodes a single frame payload.
func ParseFrame(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("malformed frame: %w", err)
	}
	return frame, nil
}
