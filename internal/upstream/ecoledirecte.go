package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"homework-planner/backend/config"
	"homework-planner/backend/internal/planner"
)

const (
	maxResponseBytes = 8 * 1024 * 1024 // 8MB
	defaultTimeout   = 20 * time.Second
)

// EcoleDirecte 上游教务平台客户端
type EcoleDirecte struct {
	baseURL    string
	apiVersion string
	userAgent  string
	client     *http.Client
	logger     *zap.Logger
}

// NewEcoleDirecte 创建客户端；httpClient 为空时按配置超时新建
func NewEcoleDirecte(cfg *config.UpstreamConfig, httpClient *http.Client, logger *zap.Logger) *EcoleDirecte {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &EcoleDirecte{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: cfg.APIVersion,
		userAgent:  cfg.UserAgent,
		client:     httpClient,
		logger:     logger,
	}
}

// CalendarEntries 抓取课表
func (e *EcoleDirecte) CalendarEntries(ctx context.Context, sess Session, from, to string) ([]planner.CalendarEntry, error) {
	path := fmt.Sprintf("/v3/E/%d/emploidutemps.awp", sess.StudentID)
	payload := map[string]any{
		"dateDebut": from,
		"dateFin":   to,
		"avecTrous": false,
	}
	env, err := e.post(ctx, path, sess.Token, payload)
	if err != nil {
		return nil, err
	}
	entries, err := ParseTimetable(env.Data)
	if err != nil {
		return nil, &Error{Status: http.StatusOK, Message: err.Error()}
	}
	return entries, nil
}

// HomeworkBatch 抓取作业本
func (e *EcoleDirecte) HomeworkBatch(ctx context.Context, sess Session) ([]HomeworkItem, error) {
	path := fmt.Sprintf("/v3/Eleves/%d/cahierdetexte.awp", sess.StudentID)
	env, err := e.post(ctx, path, sess.Token, map[string]any{})
	if err != nil {
		return nil, err
	}
	items, err := ParseHomework(env.Data)
	if err != nil {
		return nil, &Error{Status: http.StatusOK, Message: err.Error()}
	}
	return items, nil
}

// post 平台统一调用方式：POST ?verbe=get&v=…，X-Token 头，表单体 data=<JSON>
func (e *EcoleDirecte) post(ctx context.Context, path, token string, payload any) (*envelope, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &Error{Status: http.StatusUnauthorized, Message: "缺少上游凭证"}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}
	body := "data=" + url.QueryEscape(string(raw))

	q := url.Values{}
	q.Set("verbe", "get")
	q.Set("v", e.apiVersion)
	endpoint := e.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(body))
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Token", token)
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &Error{Status: http.StatusBadGateway, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: fmt.Sprintf("读取响应失败: %v", err)}
	}

	e.logger.Debug("上游请求完成",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return checkEnvelope(resp.StatusCode, data)
}
