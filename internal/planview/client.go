package planview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"homework-planner/backend/internal/dto"
)

// Client 规划 API 的最小只读客户端
type Client struct {
	BaseURL       string
	AccessToken   string
	UpstreamToken string
	HTTP          *http.Client
}

// envelope 与服务端 response.Response 对应，data 延迟解码
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Details string          `json:"details"`
}

// APIError 服务端返回的业务错误
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d [%d] %s", e.Status, e.Code, e.Message)
}

// Result 解码后的数据及是否为降级结果
type Result[T any] struct {
	Data     T
	Degraded bool
	Details  string
}

// Worksheet 获取当日作业单
func (c *Client) Worksheet(ctx context.Context, studentID int64, institution string) (*Result[dto.WorksheetResponse], error) {
	var out Result[dto.WorksheetResponse]
	return &out, c.get(ctx, studentPath(studentID, "worksheet", institution), &out.Data, &out.Degraded, &out.Details)
}

// Availability 获取空闲度评分
func (c *Client) Availability(ctx context.Context, studentID int64, institution string) (*Result[dto.AvailabilityResponse], error) {
	var out Result[dto.AvailabilityResponse]
	return &out, c.get(ctx, studentPath(studentID, "availability", institution), &out.Data, &out.Degraded, &out.Details)
}

func studentPath(studentID int64, resource, institution string) string {
	p := fmt.Sprintf("/api/v1/students/%d/%s", studentID, resource)
	if institution != "" {
		p += "?institution=" + url.QueryEscape(institution)
	}
	return p
}

func (c *Client) get(ctx context.Context, path string, data any, degraded *bool, details *string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}
	if c.UpstreamToken != "" {
		req.Header.Set("X-Upstream-Token", c.UpstreamToken)
	}

	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("请求 %s 失败: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("读取响应失败: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("解析响应失败 (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || env.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			return fmt.Errorf("解析数据失败: %w", err)
		}
	}
	*degraded = env.Message == "degraded"
	*details = env.Details
	return nil
}
