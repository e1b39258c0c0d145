// Package upstream is the HTTP client for the fire-detection service's upload
// and analyze endpoints. Every call tries the primary route first and then
// exactly one alternate route.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/satellite-fire-service/internal/domain"
)

// Route pairs a primary path with its single alternate.
type Route struct {
	Primary  string
	Fallback string
}

var (
	UploadRoute  = Route{Primary: "/api/satellite/upload", Fallback: "/satellite/upload"}
	AnalyzeRoute = Route{Primary: "/api/satellite/analyze", Fallback: "/satellite/analyze"}
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// RouteError reports that both the primary and the alternate route failed.
type RouteError struct {
	Op       string
	Primary  error
	Fallback error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("%s failed: primary: %v; fallback: %v", e.Op, e.Primary, e.Fallback)
}

// Unwrap exposes both causes to errors.Is and errors.As.
func (e *RouteError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// Analysis is one analyze response: the payload to interpret and the
// location the service resolved.
type Analysis struct {
	FileID   string
	Location string
	Input    domain.AnalysisInput
}

// Client talks to a fire-detection service. Timeouts come from the caller's
// context and the supplied http.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

type uploadResponse struct {
	FileID string `json:"file_id"`
}

// Upload sends an image and returns the file ID the service assigned.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	body, contentType, err := multipartImage(filename, data)
	if err != nil {
		return "", err
	}

	respBody, err := c.post(ctx, "upload", UploadRoute, contentType, body)
	if err != nil {
		return "", err
	}

	var resp uploadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if resp.FileID == "" {
		return "", fmt.Errorf("upload response has no file_id")
	}
	return resp.FileID, nil
}

type analyzeResponse struct {
	FileID   string `json:"file_id"`
	Location string `json:"location"`
}

// Analyze requests analysis of an uploaded image.
func (c *Client) Analyze(ctx context.Context, fileID, location string) (Analysis, error) {
	form := url.Values{"file_id": {fileID}}
	if location != "" {
		form.Set("location", location)
	}

	respBody, err := c.post(ctx, "analyze", AnalyzeRoute, "application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return Analysis{}, err
	}

	in, err := domain.DecodeAnalysis(respBody)
	if err != nil {
		return Analysis{}, fmt.Errorf("decode analyze response: %w", err)
	}
	// Raw analysis text carries no metadata.
	var meta analyzeResponse
	if in.IsStructured() {
		if err := json.Unmarshal(respBody, &meta); err != nil {
			return Analysis{}, fmt.Errorf("decode analyze response: %w", err)
		}
	}
	if meta.FileID == "" {
		meta.FileID = fileID
	}
	return Analysis{FileID: meta.FileID, Location: meta.Location, Input: in}, nil
}

// post tries the primary route, then the alternate.
func (c *Client) post(ctx context.Context, op string, route Route, contentType string, body []byte) ([]byte, error) {
	resp, primaryErr := c.do(ctx, route.Primary, contentType, body)
	if primaryErr == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s failed: %w", op, primaryErr)
	}
	c.logger.Warn("primary route failed, trying alternate", "op", op, "path", route.Primary, "error", primaryErr)

	resp, fallbackErr := c.do(ctx, route.Fallback, contentType, body)
	if fallbackErr == nil {
		return resp, nil
	}
	return nil, &RouteError{Op: op, Primary: primaryErr, Fallback: fallbackErr}
}

func (c *Client) do(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// errorMessage extracts {"error": "..."} or {"detail": "..."} bodies, else
// the trimmed body text.
func errorMessage(body []byte) string {
	var e struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Detail != "" {
			return e.Detail
		}
	}
	return strings.TrimSpace(string(body))
}

func multipartImage(filename string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	partType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if partType == "" {
		partType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", partType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
