package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"homework-planner/backend/internal/api/middleware"
	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/model"
	"homework-planner/backend/internal/service"
	"homework-planner/backend/internal/upstream"
	apperr "homework-planner/backend/pkg/errors"
	"homework-planner/backend/pkg/jwt"
	"homework-planner/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = dto.RegisterValidators(v)
	}
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock AuthService ──

type mockAuthService struct {
	loginResult   *dto.TokenResponse
	loginErr      error
	registerErr   error
	registerReq   *dto.RegisterRequest
	refreshResult *dto.TokenResponse
	refreshErr    error
	logoutErr     error
	logoutClaims  *jwt.Claims
	logoutRefresh string
	meResult      *dto.AccountResponse
	meErr         error
}

func (m *mockAuthService) Login(_ context.Context, _ *dto.LoginRequest) (*dto.TokenResponse, error) {
	return m.loginResult, m.loginErr
}
func (m *mockAuthService) Register(_ context.Context, req *dto.RegisterRequest) (*dto.TokenResponse, error) {
	m.registerReq = req
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return &dto.TokenResponse{AccessToken: "registered"}, nil
}
func (m *mockAuthService) EnsureAdmin(_ context.Context, _, _ string) error { return nil }
func (m *mockAuthService) Refresh(_ context.Context, _ *dto.RefreshTokenRequest) (*dto.TokenResponse, error) {
	return m.refreshResult, m.refreshErr
}
func (m *mockAuthService) Logout(_ context.Context, claims *jwt.Claims, refreshToken string) error {
	m.logoutClaims = claims
	m.logoutRefresh = refreshToken
	return m.logoutErr
}
func (m *mockAuthService) Me(_ context.Context, _ string) (*dto.AccountResponse, error) {
	return m.meResult, m.meErr
}

// ── Mock StudentService ──

type mockStudentService struct {
	resolveErr   error
	resolvedArgs []string
	listResult   []dto.StudentResponse
	upsertResult *dto.StudentResponse
	upsertErr    error
	workSpeed    *dto.WorkSpeedResponse
	workSpeedErr error
	updatedSpeed int
}

func (m *mockStudentService) Resolve(_ context.Context, accountID, rawStudentID, institution, upstreamToken string) (service.StudentContext, error) {
	m.resolvedArgs = []string{accountID, rawStudentID, institution, upstreamToken}
	if m.resolveErr != nil {
		return service.StudentContext{}, m.resolveErr
	}
	if institution == "" {
		institution = "college-test"
	}
	return service.StudentContext{AccountID: accountID, StudentID: 4242, Institution: institution, UpstreamToken: upstreamToken}, nil
}
func (m *mockStudentService) List(_ context.Context, _ string) ([]dto.StudentResponse, error) {
	return m.listResult, nil
}
func (m *mockStudentService) Upsert(_ context.Context, _ string, _ *dto.UpsertStudentRequest) (*dto.StudentResponse, error) {
	return m.upsertResult, m.upsertErr
}
func (m *mockStudentService) GetWorkSpeed(_ context.Context, _ service.StudentContext) (*dto.WorkSpeedResponse, error) {
	return m.workSpeed, m.workSpeedErr
}
func (m *mockStudentService) UpdateWorkSpeed(_ context.Context, _ service.StudentContext, speed int) (*dto.WorkSpeedResponse, error) {
	m.updatedSpeed = speed
	return m.workSpeed, m.workSpeedErr
}

// ── Mock AvailabilityService ──

type mockAvailabilityService struct {
	result *dto.AvailabilityResponse
	err    error
	seen   service.StudentContext
}

func (m *mockAvailabilityService) Compute(_ context.Context, sc service.StudentContext) (*dto.AvailabilityResponse, error) {
	m.seen = sc
	return m.result, m.err
}

// ── Mock WorksheetService / Refresher ──

type mockWorksheetService struct {
	result  *dto.WorksheetResponse
	err     error
	reasons []string
}

func (m *mockWorksheetService) Compute(_ context.Context, _ service.StudentContext) (*dto.WorksheetResponse, error) {
	return m.result, m.err
}
func (m *mockWorksheetService) Trigger(_ context.Context, _ service.StudentContext, reason string) (*dto.WorksheetResponse, error) {
	m.reasons = append(m.reasons, reason)
	return m.result, m.err
}

// ── Mock SyncService ──

type mockSyncService struct {
	markResult *dto.HomeworkResponse
	markErr    error
	markID     int64
	markAction string
	listResult []dto.HomeworkResponse
	listFrom   string
	syncRaw    []byte
	syncResult *dto.SyncResponse
	syncErr    error
}

func (m *mockSyncService) MergeHomework(context.Context, service.StudentContext, []upstream.HomeworkItem) ([]model.HomeworkRecord, error) {
	return nil, nil
}
func (m *mockSyncService) SyncFromUpstream(context.Context, service.StudentContext) ([]model.HomeworkRecord, error) {
	return nil, nil
}
func (m *mockSyncService) SyncPayload(_ context.Context, _ service.StudentContext, raw []byte) (*dto.SyncResponse, error) {
	m.syncRaw = raw
	return m.syncResult, m.syncErr
}
func (m *mockSyncService) ReconcileLinks(context.Context, *model.Worksheet, []int64) error {
	return nil
}
func (m *mockSyncService) MarkHomework(_ context.Context, _ service.StudentContext, externalID int64, action string) (*dto.HomeworkResponse, error) {
	m.markID = externalID
	m.markAction = action
	return m.markResult, m.markErr
}
func (m *mockSyncService) ListHomework(_ context.Context, _ service.StudentContext, from string) ([]dto.HomeworkResponse, error) {
	m.listFrom = from
	return m.listResult, nil
}

// ── Mock PreferenceService ──

type mockPreferenceService struct {
	weights       []dto.SubjectWeightResponse
	obligation    *dto.ObligationResponse
	obligations   []dto.ObligationResponse
	err           error
	updatedID     string
	imported      string
	importURL     string
	importReplace bool
	importResult  *dto.ImportObligationsResponse
}

func (m *mockPreferenceService) ListSubjectWeights(context.Context, service.StudentContext) ([]dto.SubjectWeightResponse, error) {
	return m.weights, m.err
}
func (m *mockPreferenceService) UpdateSubjectWeights(context.Context, service.StudentContext, *dto.UpdateSubjectWeightsRequest) ([]dto.SubjectWeightResponse, error) {
	return m.weights, m.err
}
func (m *mockPreferenceService) ListObligations(context.Context, service.StudentContext) ([]dto.ObligationResponse, error) {
	return m.obligations, m.err
}
func (m *mockPreferenceService) CreateObligation(context.Context, service.StudentContext, *dto.CreateObligationRequest) (*dto.ObligationResponse, error) {
	return m.obligation, m.err
}
func (m *mockPreferenceService) UpdateObligation(_ context.Context, _ service.StudentContext, id string, _ *dto.UpdateObligationRequest) (*dto.ObligationResponse, error) {
	m.updatedID = id
	return m.obligation, m.err
}
func (m *mockPreferenceService) DeleteObligation(_ context.Context, _ service.StudentContext, id string) error {
	m.updatedID = id
	return m.err
}
func (m *mockPreferenceService) ImportObligations(_ context.Context, _ service.StudentContext, r io.Reader, replace bool) (*dto.ImportObligationsResponse, error) {
	b, _ := io.ReadAll(r)
	m.imported = string(b)
	m.importReplace = replace
	return m.importResult, m.err
}
func (m *mockPreferenceService) ImportObligationsFromURL(_ context.Context, _ service.StudentContext, url string, replace bool) (*dto.ImportObligationsResponse, error) {
	m.importURL = url
	m.importReplace = replace
	return m.importResult, m.err
}

// ── Mock ExportService ──

type mockExportService struct {
	buf      *bytes.Buffer
	filename string
	err      error
}

func (m *mockExportService) ExportWorksheet(_ context.Context, _ service.StudentContext) (*bytes.Buffer, string, error) {
	return m.buf, m.filename, m.err
}

// ── Mock Recomputer ──

type recordingRecomputer struct {
	mu      sync.Mutex
	reasons []string
	seen    []service.StudentContext
}

func (r *recordingRecomputer) TriggerAsync(sc service.StudentContext, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	r.seen = append(r.seen, sc)
}

// ── Mock EventBus ──

type stubEventBus struct {
	messages  [][]byte
	cancelled bool
}

func (b *stubEventBus) Publish(context.Context, service.Event) error { return nil }
func (b *stubEventBus) Subscribe(_ context.Context, _ int64) (<-chan []byte, func(), error) {
	ch := make(chan []byte, len(b.messages))
	for _, m := range b.messages {
		ch <- m
	}
	close(ch)
	return ch, func() { b.cancelled = true }, nil
}

// ═══════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════

const testAccountID = "acc-alice"

func setAuth(c *gin.Context) {
	c.Set(middleware.ContextAccountID, testAccountID)
	c.Set(middleware.ContextRole, "parent")
	c.Set(middleware.ContextClaims, &jwt.Claims{AccountID: testAccountID, Role: "parent", TokenType: jwt.TokenTypeAccess})
	c.Next()
}

// serve 注册单条路由并执行请求；authed 时注入账号上下文
func serve(method, route, target string, body io.Reader, h gin.HandlerFunc, authed bool, headers ...string) *httptest.ResponseRecorder {
	r := gin.New()
	if authed {
		r.Use(setAuth)
	}
	r.Handle(method, route, h)

	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status, code int) response.Response {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, w.Body.String())
	}
	resp := parseResponse(w)
	if resp.Code != code {
		t.Fatalf("expected code %d, got %d (%s)", code, resp.Code, resp.Message)
	}
	return resp
}

func newPlannerHandler(students *mockStudentService, avail *mockAvailabilityService, ws *mockWorksheetService, syncSvc *mockSyncService) *PlannerHandler {
	return NewPlannerHandler(students, avail, ws, syncSvc, ws)
}

// ═══════════════════════════════════════════════════════════
// AuthHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAuthHandler_Login_Success(t *testing.T) {
	mock := &mockAuthService{
		loginResult: &dto.TokenResponse{
			AccessToken:  "test-access-token",
			RefreshToken: "test-refresh-token",
			ExpiresIn:    900,
		},
	}
	h := NewAuthHandler(mock)

	w := serve("POST", "/auth/login", "/auth/login", jsonBody(dto.LoginRequest{
		Username: "alice",
		Password: "Test1234",
	}), h.Login, false)

	expectStatus(t, w, http.StatusOK, 0)
	if !strings.Contains(w.Body.String(), "test-access-token") {
		t.Errorf("expected access token in body: %s", w.Body.String())
	}
}

func TestAuthHandler_Login_BadJSON(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	w := serve("POST", "/auth/login", "/auth/login", bytes.NewReader([]byte("invalid json")), h.Login, false)

	expectStatus(t, w, http.StatusBadRequest, 10001)
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{loginErr: service.ErrInvalidCredentials})

	w := serve("POST", "/auth/login", "/auth/login", jsonBody(dto.LoginRequest{
		Username: "alice",
		Password: "wrong",
	}), h.Login, false)

	expectStatus(t, w, http.StatusUnauthorized, 11001)
}

func TestAuthHandler_Register(t *testing.T) {
	tests := []struct {
		name   string
		body   dto.RegisterRequest
		err    error
		status int
		code   int
	}{
		{"created", dto.RegisterRequest{Username: "bob", Password: "Password1", Role: "parent"}, nil, http.StatusCreated, 0},
		{"short password", dto.RegisterRequest{Username: "bob", Password: "short"}, nil, http.StatusBadRequest, 10001},
		{"admin not allowed", dto.RegisterRequest{Username: "bob", Password: "Password1", Role: "admin"}, nil, http.StatusBadRequest, 10001},
		{"taken", dto.RegisterRequest{Username: "alice", Password: "Password1"}, service.ErrUsernameTaken, http.StatusConflict, 11004},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&mockAuthService{registerErr: tt.err})
			w := serve("POST", "/auth/register", "/auth/register", jsonBody(tt.body), h.Register, false)
			expectStatus(t, w, tt.status, tt.code)
		})
	}
}

func TestAuthHandler_RefreshToken_Revoked(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"revoked", service.ErrTokenRevoked, 11002},
		{"expired", jwt.ErrTokenExpired, 11002},
		{"wrong type", service.ErrNotRefreshToken, 11002},
		{"account gone", service.ErrAccountNotFound, 11003},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&mockAuthService{refreshErr: tt.err})
			w := serve("POST", "/auth/refresh", "/auth/refresh",
				jsonBody(dto.RefreshTokenRequest{RefreshToken: "r"}), h.RefreshToken, false)
			expectStatus(t, w, http.StatusUnauthorized, tt.code)
		})
	}
}

func TestAuthHandler_RefreshToken_Success(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{refreshResult: &dto.TokenResponse{AccessToken: "new-access", RefreshToken: "new-refresh"}})

	w := serve("POST", "/auth/refresh", "/auth/refresh",
		jsonBody(dto.RefreshTokenRequest{RefreshToken: "old"}), h.RefreshToken, false)

	expectStatus(t, w, http.StatusOK, 0)
}

func TestAuthHandler_Logout_Success(t *testing.T) {
	mock := &mockAuthService{}
	h := NewAuthHandler(mock)

	w := serve("POST", "/auth/logout", "/auth/logout",
		jsonBody(dto.LogoutRequest{RefreshToken: "refresh-1"}), h.Logout, true)

	expectStatus(t, w, http.StatusOK, 0)
	if mock.logoutClaims == nil || mock.logoutClaims.AccountID != testAccountID {
		t.Errorf("expected claims of %s, got %+v", testAccountID, mock.logoutClaims)
	}
	if mock.logoutRefresh != "refresh-1" {
		t.Errorf("expected refresh-1, got %q", mock.logoutRefresh)
	}
}

func TestAuthHandler_Logout_Unauthenticated(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	w := serve("POST", "/auth/logout", "/auth/logout", nil, h.Logout, false)

	expectStatus(t, w, http.StatusUnauthorized, 10002)
}

func TestAuthHandler_Me_NotFound(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{meErr: service.ErrAccountNotFound})

	w := serve("GET", "/auth/me", "/auth/me", nil, h.Me, true)

	expectStatus(t, w, http.StatusNotFound, 11003)
}

// ═══════════════════════════════════════════════════════════
// StudentHandler Tests
// ═══════════════════════════════════════════════════════════

func TestStudentHandler_Upsert_TriggersRecompute(t *testing.T) {
	students := &mockStudentService{upsertResult: &dto.StudentResponse{StudentID: 4242, Institution: "college-test"}}
	rec := &recordingRecomputer{}
	h := NewStudentHandler(students, rec)

	w := serve("PUT", "/students", "/students", jsonBody(dto.UpsertStudentRequest{
		StudentID:   4242,
		Institution: "college-test",
	}), h.Upsert, true, HeaderUpstreamToken, "tok")

	expectStatus(t, w, http.StatusOK, 0)
	if len(rec.reasons) != 1 || rec.reasons[0] != service.ReasonStudentChanged {
		t.Fatalf("expected one student-changed trigger, got %v", rec.reasons)
	}
	if rec.seen[0].UpstreamToken != "tok" || rec.seen[0].AccountID != testAccountID {
		t.Errorf("unexpected context: %+v", rec.seen[0])
	}
}

func TestStudentHandler_Upsert_Owned(t *testing.T) {
	rec := &recordingRecomputer{}
	h := NewStudentHandler(&mockStudentService{upsertErr: service.ErrStudentOwned}, rec)

	w := serve("PUT", "/students", "/students", jsonBody(dto.UpsertStudentRequest{
		StudentID:   4242,
		Institution: "college-test",
	}), h.Upsert, true)

	expectStatus(t, w, http.StatusConflict, codeStudentOwned)
	if len(rec.reasons) != 0 {
		t.Errorf("no recompute expected on failure, got %v", rec.reasons)
	}
}

func TestStudentHandler_UpdateWorkSpeed_Invalid(t *testing.T) {
	students := &mockStudentService{}
	h := NewStudentHandler(students, &recordingRecomputer{})

	w := serve("PUT", "/students/:studentId/work-speed", "/students/4242/work-speed",
		jsonBody(dto.WorkSpeedRequest{WorkSpeed: 5}), h.UpdateWorkSpeed, true)

	expectStatus(t, w, http.StatusBadRequest, 10001)
	if students.updatedSpeed != 0 {
		t.Error("service should not be called")
	}
}

// ═══════════════════════════════════════════════════════════
// PlannerHandler Tests
// ═══════════════════════════════════════════════════════════

func TestPlannerHandler_Availability_Success(t *testing.T) {
	students := &mockStudentService{}
	avail := &mockAvailabilityService{result: &dto.AvailabilityResponse{StudentID: 4242, DayScore: 2, Source: dto.SourceLive}}
	h := newPlannerHandler(students, avail, &mockWorksheetService{}, &mockSyncService{})

	w := serve("GET", "/students/:studentId/availability", "/students/4242/availability?institution=college-test",
		nil, h.Availability, true, HeaderUpstreamToken, " tok ", HeaderUpstreamAccount, "77")

	resp := expectStatus(t, w, http.StatusOK, 0)
	if resp.Message != "success" {
		t.Errorf("expected success, got %s", resp.Message)
	}
	want := []string{testAccountID, "4242", "college-test", "tok"}
	for i := range want {
		if students.resolvedArgs[i] != want[i] {
			t.Errorf("resolve arg %d: expected %q, got %q", i, want[i], students.resolvedArgs[i])
		}
	}
	if avail.seen.AccountRef == nil || *avail.seen.AccountRef != 77 {
		t.Errorf("expected account ref 77, got %v", avail.seen.AccountRef)
	}
}

func TestPlannerHandler_Availability_Degraded(t *testing.T) {
	avail := &mockAvailabilityService{
		result: &dto.AvailabilityResponse{StudentID: 4242, Source: dto.SourceCache},
		err:    apperr.UpstreamUnavailable("computeAvailability", errors.New("timeout")),
	}
	h := newPlannerHandler(&mockStudentService{}, avail, &mockWorksheetService{}, &mockSyncService{})

	w := serve("GET", "/students/:studentId/availability", "/students/4242/availability", nil, h.Availability, true)

	resp := expectStatus(t, w, http.StatusOK, 0)
	if resp.Message != "degraded" || resp.Details == "" {
		t.Errorf("expected degraded with details, got %+v", resp)
	}
}

func TestPlannerHandler_Availability_InvalidAccountHeader(t *testing.T) {
	avail := &mockAvailabilityService{}
	h := newPlannerHandler(&mockStudentService{}, avail, &mockWorksheetService{}, &mockSyncService{})

	w := serve("GET", "/students/:studentId/availability", "/students/4242/availability",
		nil, h.Availability, true, HeaderUpstreamAccount, "abc")

	expectStatus(t, w, http.StatusBadRequest, codeInputInvalid)
}

func TestPlannerHandler_Resolve_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   int
	}{
		{"invalid id", apperr.InputInvalid("parseStudentID", "学生 ID 必须为正整数"), http.StatusBadRequest, codeInputInvalid},
		{"not found", service.ErrStudentNotFound, http.StatusNotFound, codeStudentNotFound},
		{"forbidden", service.ErrStudentForbidden, http.StatusForbidden, codeStudentForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := &mockWorksheetService{}
			h := newPlannerHandler(&mockStudentService{resolveErr: tt.err}, &mockAvailabilityService{}, ws, &mockSyncService{})
			w := serve("GET", "/students/:studentId/worksheet", "/students/abc/worksheet", nil, h.Worksheet, true)
			expectStatus(t, w, tt.status, tt.code)
		})
	}
}

func TestPlannerHandler_Worksheet_UpstreamWithoutData(t *testing.T) {
	ws := &mockWorksheetService{err: apperr.UpstreamUnavailable("computeWorksheet", errors.New("502"))}
	h := newPlannerHandler(&mockStudentService{}, &mockAvailabilityService{}, ws, &mockSyncService{})

	w := serve("GET", "/students/:studentId/worksheet", "/students/4242/worksheet", nil, h.Worksheet, true)

	expectStatus(t, w, http.StatusBadGateway, codeUpstreamUnavailable)
}

func TestPlannerHandler_Refresh(t *testing.T) {
	t.Run("manual refresh", func(t *testing.T) {
		ws := &mockWorksheetService{result: &dto.WorksheetResponse{StudentID: 4242, Budget: 3}}
		h := newPlannerHandler(&mockStudentService{}, &mockAvailabilityService{}, ws, &mockSyncService{})
		w := serve("POST", "/students/:studentId/refresh", "/students/4242/refresh", nil, h.Refresh, true)
		expectStatus(t, w, http.StatusOK, 0)
		if len(ws.reasons) != 1 || ws.reasons[0] != service.ReasonManualRefresh {
			t.Errorf("expected manual-refresh, got %v", ws.reasons)
		}
	})
	t.Run("superseded", func(t *testing.T) {
		ws := &mockWorksheetService{err: service.ErrStaleRun}
		h := newPlannerHandler(&mockStudentService{}, &mockAvailabilityService{}, ws, &mockSyncService{})
		w := serve("POST", "/students/:studentId/refresh", "/students/4242/refresh", nil, h.Refresh, true)
		expectStatus(t, w, http.StatusConflict, codeStaleRun)
	})
}

func TestPlannerHandler_Mark_Success(t *testing.T) {
	syncSvc := &mockSyncService{markResult: &dto.HomeworkResponse{ExternalID: 10, IsDone: true}}
	h := newPlannerHandler(&mockStudentService{}, &mockAvailabilityService{}, &mockWorksheetService{}, syncSvc)

	w := serve("POST", "/students/:studentId/homework/:externalId/mark", "/students/4242/homework/10/mark",
		jsonBody(dto.MarkHomeworkRequest{Action: "done-today"}), h.Mark, true)

	expectStatus(t, w, http.StatusOK, 0)
	if syncSvc.markID != 10 || syncSvc.markAction != "done-today" {
		t.Errorf("unexpected call: id=%d action=%s", syncSvc.markID, syncSvc.markAction)
	}
}

func TestPlannerHandler_Mark_ConflictReturnsAuthoritative(t *testing.T) {
	syncSvc := &mockSyncService{
		markResult: &dto.HomeworkResponse{ExternalID: 10, IsDone: false},
		markErr:    apperr.PersistenceConflict("markHomework", errors.New("deadlock")),
	}
	h := newPlannerHandler(&mockStudentService{}, &mockAvailabilityService{}, &mockWorksheetService{}, syncSvc)

	w := serve("POST", "/students/:studentId/homework/:externalId/mark", "/students/4242/homework/10/mark",
		jsonBody(dto.MarkHomeworkRequest{Action: "done-today"}), h.Mark, true)

	resp := expectStatus(t, w, http.StatusConflict, codePersistenceConflict)
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected authoritative record in data, got %T", resp.Data)
	}
	if data["is_done"] != false || data["external_id"] != float64(10) {
		t.Errorf("unexpected data: %v", data)
	}
}

func TestPlannerHandler_Mark_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		target string
		action string
		code   int
	}{
		{"non numeric id", "/students/4242/homework/abc/mark", "done-today", codeInputInvalid},
		{"zero id", "/students/4242/homework/0/mark", "done-today", codeInputInvalid},
		{"unknown action", "/students/4242/homework/10/mark", "done-tomorrow", 10001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncSvc := &mockSyncService{}
			h := newPlannerHandler(&mockStudentService{}, &mockAvailabilityService{}, &mockWorksheetService{}, syncSvc)
			w := serve("POST", "/students/:studentId/homework/:externalId/mark", tt.target,
				jsonBody(dto.MarkHomeworkRequest{Action: tt.action}), h.Mark, true)
			expectStatus(t, w, http.StatusBadRequest, tt.code)
			if syncSvc.markID != 0 {
				t.Error("service should not be called")
			}
		})
	}
}

func TestPlannerHandler_Mark_NotFound(t *testing.T) {
	syncSvc := &mockSyncService{markErr: service.ErrHomeworkNotFound}
	h := newPlannerHandler(&mockStudentService{}, &mockAvailabilityService{}, &mockWorksheetService{}, syncSvc)

	w := serve("POST", "/students/:studentId/homework/:externalId/mark", "/students/4242/homework/99/mark",
		jsonBody(dto.MarkHomeworkRequest{Action: "not-done"}), h.Mark, true)

	expectStatus(t, w, http.StatusNotFound, codeHomeworkNotFound)
}

func TestPlannerHandler_ListHomework(t *testing.T) {
	syncSvc := &mockSyncService{listResult: []dto.HomeworkResponse{{ExternalID: 1}}}
	h := newPlannerHandler(&mockStudentService{}, &mockAvailabilityService{}, &mockWorksheetService{}, syncSvc)

	w := serve("GET", "/students/:studentId/homework", "/students/4242/homework?from=2025-03-10", nil, h.ListHomework, true)
	expectStatus(t, w, http.StatusOK, 0)
	if syncSvc.listFrom != "2025-03-10" {
		t.Errorf("expected from=2025-03-10, got %q", syncSvc.listFrom)
	}

	w = serve("GET", "/students/:studentId/homework", "/students/4242/homework?from=10-03-2025", nil, h.ListHomework, true)
	expectStatus(t, w, http.StatusBadRequest, 10001)
}

func TestPlannerHandler_Sync_PassesRawBody(t *testing.T) {
	payload := `{"code":200,"data":{"2025-03-12":[]}}`
	syncSvc := &mockSyncService{syncResult: &dto.SyncResponse{Received: 0}}
	h := newPlannerHandler(&mockStudentService{}, &mockAvailabilityService{}, &mockWorksheetService{}, syncSvc)

	w := serve("POST", "/students/:studentId/homework/sync", "/students/4242/homework/sync",
		strings.NewReader(payload), h.Sync, true)

	expectStatus(t, w, http.StatusOK, 0)
	if string(syncSvc.syncRaw) != payload {
		t.Errorf("expected raw payload, got %s", syncSvc.syncRaw)
	}
}

func TestPlannerHandler_Sync_InvalidPayload(t *testing.T) {
	syncSvc := &mockSyncService{syncErr: apperr.InputInvalid("syncPayload", "作业本格式无效")}
	h := newPlannerHandler(&mockStudentService{}, &mockAvailabilityService{}, &mockWorksheetService{}, syncSvc)

	w := serve("POST", "/students/:studentId/homework/sync", "/students/4242/homework/sync",
		strings.NewReader("{"), h.Sync, true)

	resp := expectStatus(t, w, http.StatusBadRequest, codeInputInvalid)
	if resp.Message != "作业本格式无效" {
		t.Errorf("expected message without op prefix, got %q", resp.Message)
	}
}

// ═══════════════════════════════════════════════════════════
// PreferenceHandler Tests
// ═══════════════════════════════════════════════════════════

func TestPreferenceHandler_CreateObligation(t *testing.T) {
	prefs := &mockPreferenceService{obligation: &dto.ObligationResponse{ID: "obl-001", Category: "Sport", Weekdays: []int{2, 4}, Version: 1}}
	h := NewPreferenceHandler(&mockStudentService{}, prefs)

	w := serve("POST", "/students/:studentId/obligations", "/students/4242/obligations",
		jsonBody(dto.CreateObligationRequest{Category: "Sport", Weekdays: []int{2, 4}}), h.CreateObligation, true)

	expectStatus(t, w, http.StatusCreated, 0)
}

func TestPreferenceHandler_CreateObligation_InvalidWeekdays(t *testing.T) {
	h := NewPreferenceHandler(&mockStudentService{}, &mockPreferenceService{})

	w := serve("POST", "/students/:studentId/obligations", "/students/4242/obligations",
		jsonBody(dto.CreateObligationRequest{Category: "Sport", Weekdays: []int{0, 8}}), h.CreateObligation, true)

	expectStatus(t, w, http.StatusBadRequest, 10001)
}

func TestPreferenceHandler_UpdateObligation_Conflict(t *testing.T) {
	prefs := &mockPreferenceService{err: service.ErrObligationConflict}
	h := NewPreferenceHandler(&mockStudentService{}, prefs)

	w := serve("PUT", "/students/:studentId/obligations/:id", "/students/4242/obligations/obl-001",
		jsonBody(dto.UpdateObligationRequest{Category: "Music", Weekdays: []int{3}, Version: 1}), h.UpdateObligation, true)

	expectStatus(t, w, http.StatusConflict, codeObligationConflict)
	if prefs.updatedID != "obl-001" {
		t.Errorf("expected obl-001, got %q", prefs.updatedID)
	}
}

func TestPreferenceHandler_DeleteObligation_NotFound(t *testing.T) {
	h := NewPreferenceHandler(&mockStudentService{}, &mockPreferenceService{err: service.ErrObligationNotFound})

	w := serve("DELETE", "/students/:studentId/obligations/:id", "/students/4242/obligations/obl-404", nil, h.DeleteObligation, true)

	expectStatus(t, w, http.StatusNotFound, codeObligationNotFound)
}

func TestPreferenceHandler_UpdateSubjectWeights_OutOfRange(t *testing.T) {
	h := NewPreferenceHandler(&mockStudentService{}, &mockPreferenceService{})

	w := serve("PUT", "/students/:studentId/subject-weights", "/students/4242/subject-weights",
		jsonBody(dto.UpdateSubjectWeightsRequest{Weights: []dto.SubjectWeightItem{{SubjectCode: "MATHS", Weight: 4}}}),
		h.UpdateSubjectWeights, true)

	expectStatus(t, w, http.StatusBadRequest, 10001)
}

func TestPreferenceHandler_Import_File(t *testing.T) {
	prefs := &mockPreferenceService{importResult: &dto.ImportObligationsResponse{Created: 1}}
	h := NewPreferenceHandler(&mockStudentService{}, prefs)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("file", "activites.ics")
	fw.Write([]byte("BEGIN:VCALENDAR\nEND:VCALENDAR\n"))
	mw.WriteField("replace", "true")
	mw.Close()

	r := gin.New()
	r.Use(setAuth)
	r.POST("/students/:studentId/obligations/import", h.ImportObligations)
	req := httptest.NewRequest("POST", "/students/4242/obligations/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	expectStatus(t, w, http.StatusCreated, 0)
	if !strings.HasPrefix(prefs.imported, "BEGIN:VCALENDAR") || !prefs.importReplace {
		t.Errorf("unexpected import: replace=%v content=%q", prefs.importReplace, prefs.imported)
	}
}

func TestPreferenceHandler_Import_URL(t *testing.T) {
	prefs := &mockPreferenceService{importResult: &dto.ImportObligationsResponse{Created: 2}}
	h := NewPreferenceHandler(&mockStudentService{}, prefs)

	w := serve("POST", "/students/:studentId/obligations/import", "/students/4242/obligations/import",
		jsonBody(dto.ImportObligationsRequest{URL: "https://example.org/a.ics"}), h.ImportObligations, true)

	expectStatus(t, w, http.StatusCreated, 0)
	if prefs.importURL != "https://example.org/a.ics" || prefs.importReplace {
		t.Errorf("unexpected import: url=%q replace=%v", prefs.importURL, prefs.importReplace)
	}
}

func TestPreferenceHandler_Import_NoSource(t *testing.T) {
	h := NewPreferenceHandler(&mockStudentService{}, &mockPreferenceService{})

	w := serve("POST", "/students/:studentId/obligations/import", "/students/4242/obligations/import",
		jsonBody(map[string]bool{"replace": true}), h.ImportObligations, true)

	expectStatus(t, w, http.StatusBadRequest, codeImportSource)
}

func TestPreferenceHandler_Import_EmptyCalendar(t *testing.T) {
	h := NewPreferenceHandler(&mockStudentService{}, &mockPreferenceService{err: service.ErrICSEmpty})

	w := serve("POST", "/students/:studentId/obligations/import", "/students/4242/obligations/import",
		jsonBody(dto.ImportObligationsRequest{URL: "https://example.org/empty.ics"}), h.ImportObligations, true)

	expectStatus(t, w, http.StatusBadRequest, codeICSEmpty)
}

// ═══════════════════════════════════════════════════════════
// ExportHandler Tests
// ═══════════════════════════════════════════════════════════

func TestExportHandler_Success(t *testing.T) {
	mock := &mockExportService{
		buf:      bytes.NewBufferString("excel content"),
		filename: "作业单_4242_2025-03-12.xlsx",
	}
	h := NewExportHandler(&mockStudentService{}, mock)

	w := serve("GET", "/students/:studentId/worksheet/export", "/students/4242/worksheet/export", nil, h.ExportWorksheet, true)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("unexpected content type: %s", ct)
	}
	cd := w.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, "attachment; filename*=UTF-8''") {
		t.Errorf("unexpected Content-Disposition: %s", cd)
	}
	if w.Body.String() != "excel content" {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestExportHandler_GenerateFail(t *testing.T) {
	h := NewExportHandler(&mockStudentService{}, &mockExportService{err: service.ErrExportGenerateFail})

	w := serve("GET", "/students/:studentId/worksheet/export", "/students/4242/worksheet/export", nil, h.ExportWorksheet, true)

	expectStatus(t, w, http.StatusInternalServerError, 50000)
}

func TestExportHandler_UpstreamWithoutData(t *testing.T) {
	h := NewExportHandler(&mockStudentService{}, &mockExportService{err: apperr.UpstreamUnavailable("computeWorksheet", errors.New("down"))})

	w := serve("GET", "/students/:studentId/worksheet/export", "/students/4242/worksheet/export", nil, h.ExportWorksheet, true)

	expectStatus(t, w, http.StatusBadGateway, codeUpstreamUnavailable)
}

// ═══════════════════════════════════════════════════════════
// EventsHandler Tests
// ═══════════════════════════════════════════════════════════

// closeNotifyRecorder gin 的 Stream 依赖 http.CloseNotifier
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func TestEventsHandler_Stream(t *testing.T) {
	bus := &stubEventBus{messages: [][]byte{
		[]byte(`{"type":"worksheet.updated","student_id":4242,"institution":"college-test"}`),
		[]byte(`{"type":"worksheet.updated","student_id":4242,"institution":"other-school"}`),
		[]byte(`{"type":"preferences.changed","student_id":4242,"institution":"college-test"}`),
	}}
	h := NewEventsHandler(&mockStudentService{}, bus)

	r := gin.New()
	r.Use(setAuth)
	r.GET("/students/:studentId/events", h.Stream)
	req := httptest.NewRequest("GET", "/students/4242/events?institution=college-test", nil)
	w := &closeNotifyRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	r.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event:worksheet.updated") || !strings.Contains(body, "event:preferences.changed") {
		t.Errorf("expected both events, got %q", body)
	}
	if strings.Contains(body, "other-school") {
		t.Errorf("event of another institution leaked: %q", body)
	}
	if !bus.cancelled {
		t.Error("subscription should be cancelled when stream ends")
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("unexpected content type: %s", ct)
	}
}

// ═══════════════════════════════════════════════════════════
// MaintenanceHandler Tests
// ═══════════════════════════════════════════════════════════

type stubReaper struct {
	n   int64
	err error
}

func (r *stubReaper) Run(context.Context) (int64, error) { return r.n, r.err }

func TestMaintenanceHandler_RunReaper(t *testing.T) {
	h := NewMaintenanceHandler(&stubReaper{n: 3})

	w := serve("POST", "/admin/reaper/run", "/admin/reaper/run", nil, h.RunReaper, true)

	resp := expectStatus(t, w, http.StatusOK, 0)
	data, _ := resp.Data.(map[string]interface{})
	if data["soft_deleted"] != float64(3) {
		t.Errorf("expected 3, got %v", resp.Data)
	}
}
