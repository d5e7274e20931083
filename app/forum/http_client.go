package forum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

var _ Client = (*HTTPClient)(nil)

// HTTPClient talks to a NodeBB-style forum write API with a bearer
// token.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
}

func NewHTTPClient(httpClient *http.Client, baseURL, token, userAgent string) *HTTPClient {
	return &HTTPClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		userAgent:  userAgent,
	}
}

func (c *HTTPClient) CreateTopic(ctx context.Context, req TopicRequest) (*TopicResult, error) {
	payload := map[string]interface{}{
		"_uid":    req.UID,
		"cid":     req.CategoryID,
		"title":   req.Title,
		"content": req.Content,
		"tags":    req.Tags,
	}

	var response struct {
		Response struct {
			TID     int64 `json:"tid"`
			CID     int64 `json:"cid"`
			UID     int64 `json:"uid"`
			MainPID int64 `json:"mainPid"`
		} `json:"response"`
	}

	if err := c.do(ctx, "POST", "/api/v3/topics", payload, &response); err != nil {
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}

	return &TopicResult{
		TopicID:    response.Response.TID,
		PostID:     response.Response.MainPID,
		CategoryID: response.Response.CID,
		AuthorID:   response.Response.UID,
	}, nil
}

func (c *HTTPClient) UIDByUsername(ctx context.Context, username string) (int64, error) {
	var response struct {
		UID int64 `json:"uid"`
	}

	err := c.do(ctx, "GET", "/api/user/username/"+username, nil, &response)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to look up username: %w", err)
	}

	return response.UID, nil
}

func (c *HTTPClient) SetUserField(ctx context.Context, uid int64, field string, value int64) error {
	payload := map[string]interface{}{
		field: value,
	}

	path := "/api/v3/users/" + strconv.FormatInt(uid, 10)
	if err := c.do(ctx, "PUT", path, payload, nil); err != nil {
		return fmt.Errorf("failed to set user field: %w", err)
	}
	return nil
}

// GetSettings reads postDelay and newbiePostDelay from the forum's
// config endpoint. The values arrive as numeric strings; missing or
// unparseable values default to 10 seconds.
func (c *HTTPClient) GetSettings(ctx context.Context) (Settings, error) {
	var response map[string]interface{}

	if err := c.do(ctx, "GET", "/api/config", nil, &response); err != nil {
		return Settings{}, fmt.Errorf("failed to fetch forum config: %w", err)
	}

	return Settings{
		PostDelay:       configSeconds(response["postDelay"]),
		NewbiePostDelay: configSeconds(response["newbiePostDelay"]),
	}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload, result interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &apiError{status: resp.StatusCode, body: string(data)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP error: %d %s", e.status, e.body)
}

func isNotFound(err error) bool {
	apiErr, ok := err.(*apiError)
	return ok && apiErr.status == http.StatusNotFound
}

func configSeconds(value interface{}) int {
	switch v := value.(type) {
	case string:
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	case float64:
		if v >= 0 {
			return int(v)
		}
	}
	return DefaultPostDelay
}
