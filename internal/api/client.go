package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	httpTimeoutEnvKey  = "IMGSTORE_HTTP_TIMEOUT"
	adminTokenEnvKey   = "IMGSTORE_ADMIN_TOKEN"
)

// Client is a simple HTTP client for the imgstore API.
type Client struct {
	baseURL    string
	http       *http.Client
	adminToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// UploadImage posts one image. A non-empty owner uses the profile endpoint.
func (c *Client) UploadImage(ctx context.Context, filename, contentType string, data io.Reader, owner string) (UploadResponse, error) {
	var resp UploadResponse

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return resp, err
	}
	if _, err := io.Copy(part, data); err != nil {
		return resp, err
	}
	path := "/v1/images"
	if owner != "" {
		path = "/v1/profile-images"
		if err := writer.WriteField("owner", owner); err != nil {
			return resp, err
		}
	}
	if err := writer.Close(); err != nil {
		return resp, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	err = c.send(req, &resp)
	return resp, err
}

// GetImage downloads the image stored under key.
func (c *Client) GetImage(ctx context.Context, key string) (FetchedImage, error) {
	return c.fetch(ctx, "/v1/images/"+url.PathEscape(key))
}

// GetOwnerImage downloads the current image of owner.
func (c *Client) GetOwnerImage(ctx context.Context, owner string) (FetchedImage, error) {
	return c.fetch(ctx, "/v1/owners/"+url.PathEscape(owner)+"/image")
}

// DeleteImage deletes by key.
func (c *Client) DeleteImage(ctx context.Context, key string) (DeleteResponse, error) {
	var resp DeleteResponse
	err := c.do(ctx, http.MethodDelete, "/v1/images/"+url.PathEscape(key), nil, &resp)
	return resp, err
}

// DeleteOwnerImage deletes the current image of owner.
func (c *Client) DeleteOwnerImage(ctx context.Context, owner string) (DeleteResponse, error) {
	var resp DeleteResponse
	err := c.do(ctx, http.MethodDelete, "/v1/owners/"+url.PathEscape(owner)+"/image", nil, &resp)
	return resp, err
}

// ListImages returns the admin listing; it sends IMGSTORE_ADMIN_TOKEN.
func (c *Client) ListImages(ctx context.Context, query url.Values) (ImageListResponse, error) {
	var resp ImageListResponse
	endpoint := c.baseURL + "/v1/admin/images"
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return resp, err
	}
	c.setAdminHeader(req)
	err = c.send(req, &resp)
	return resp, err
}

func (c *Client) fetch(ctx context.Context, path string) (FetchedImage, error) {
	var out FetchedImage
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return out, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return out, decodeError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, err
	}
	out.ContentType = resp.Header.Get("Content-Type")
	out.Data = data
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		return &APIError{
			Status:    resp.StatusCode,
			Code:      errResp.Code,
			ErrorCode: errResp.ErrorCode,
			Message:   errResp.Error,
		}
	}
	return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("api error: %s", resp.Status)}
}

func (c *Client) setAdminHeader(req *http.Request) {
	if c.adminToken == "" || req == nil {
		return
	}
	req.Header.Set("X-Admin-Token", c.adminToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
