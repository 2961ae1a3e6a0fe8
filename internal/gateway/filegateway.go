// Package gateway implements the external file store client: template
// download and rendered-certificate upload, both HMAC-signed.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/brightleaf/certforge/internal/common"
	"github.com/brightleaf/certforge/internal/interfaces"
	"github.com/brightleaf/certforge/internal/models"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 20 // requests per second
)

// Client implements interfaces.FileGateway against the HMAC-signed file
// gateway described in the external interfaces contract.
type Client struct {
	baseURL     string
	accessKey   string
	secretKey   string
	projectID   string
	httpClient  *http.Client
	logger      *common.Logger
	limiter     *rate.Limiter
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets the gateway base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithRateLimit sets the outbound request rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient constructs a file gateway client.
func NewClient(baseURL, accessKey, secretKey, projectID string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   baseURL,
		accessKey: accessKey,
		secretKey: secretKey,
		projectID: projectID,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is returned when a download answers with any status other than
// 200, or an upload with any status other than 200 or 201.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("file gateway error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// sign computes HMAC-SHA256(secret, "METHOD\nPATH\nunix_ts") in hex. Path
// never includes a /public prefix, even when the effective request URL does.
func (c *Client) sign(method, signedPath string, ts int64) string {
	payload := fmt.Sprintf("%s\n%s\n%d", method, signedPath, ts)
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) authHeaders(method, signedPath string) http.Header {
	ts := time.Now().Unix()
	h := make(http.Header)
	h.Set("X-Access-Key", c.accessKey)
	h.Set("X-Signature", c.sign(method, signedPath, ts))
	h.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	return h
}

// Download retrieves template bytes for fileID from GET /files/{uuid}.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	signedPath := "/files/" + fileID
	reqURL := c.baseURL + signedPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.authHeaders(http.MethodGet, signedPath) {
		req.Header[k] = v
	}

	c.logger.Debug().Str("file_id", fileID).Msg("downloading template")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute download request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: signedPath}
	}

	return body, nil
}

// Upload posts the rendered certificate to POST /api/v1/files.
func (c *Client) Upload(ctx context.Context, req interfaces.UploadRequest) (*models.FileDescriptor, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", req.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart file field: %w", err)
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := mw.WriteField("project_id", c.projectID); err != nil {
		return nil, fmt.Errorf("failed to write project_id field: %w", err)
	}
	if err := mw.WriteField("user_id", req.UserID); err != nil {
		return nil, fmt.Errorf("failed to write user_id field: %w", err)
	}
	if err := mw.WriteField("is_public", strconv.FormatBool(req.IsPublic)); err != nil {
		return nil, fmt.Errorf("failed to write is_public field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	const signedPath = "/api/v1/files"
	reqURL := c.baseURL + signedPath

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range c.authHeaders(http.MethodPost, signedPath) {
		httpReq.Header[k] = v
	}

	c.logger.Debug().Str("file_name", req.FileName).Msg("uploading rendered certificate")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody), Endpoint: signedPath}
	}

	var descriptor models.FileDescriptor
	if err := json.Unmarshal(respBody, &descriptor); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return &descriptor, nil
}

var _ interfaces.FileGateway = (*Client)(nil)
