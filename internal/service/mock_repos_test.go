package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"homework-planner/backend/config"
	"homework-planner/backend/internal/model"
	"homework-planner/backend/internal/planner"
	"homework-planner/backend/internal/repository"
	"homework-planner/backend/internal/upstream"
	pkgerrors "homework-planner/backend/pkg/errors"
)

// ── Mock AccountRepository ──

type mockAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account // key: account_id
}

func newMockAccountRepo() *mockAccountRepo {
	return &mockAccountRepo{accounts: make(map[string]*model.Account)}
}

func (m *mockAccountRepo) Create(_ context.Context, account *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account.AccountID == "" {
		account.AccountID = "acc-" + account.Username
	}
	m.accounts[account.AccountID] = account
	return nil
}

func (m *mockAccountRepo) GetByID(_ context.Context, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAccountRepo) GetByUsername(_ context.Context, username string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock StudentRepository ──

type mockStudentRepo struct {
	mu       sync.Mutex
	students map[string]*model.Student // key: id:institution
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{students: make(map[string]*model.Student)}
}

func studentKey(id int64, institution string) string {
	return fmt.Sprintf("%d:%s", id, institution)
}

func (m *mockStudentRepo) Upsert(_ context.Context, student *model.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := studentKey(student.StudentID, student.Institution)
	if existing, ok := m.students[key]; ok {
		existing.FirstName = student.FirstName
		existing.LastName = student.LastName
		existing.ClassLabel = student.ClassLabel
		existing.LastSeenAt = student.LastSeenAt
		return nil
	}
	cp := *student
	if cp.WorkSpeed == 0 {
		cp.WorkSpeed = model.WorkSpeedNormal
	}
	m.students[key] = &cp
	return nil
}

func (m *mockStudentRepo) Get(_ context.Context, studentID int64, institution string) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.students[studentKey(studentID, institution)]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStudentRepo) ListByAccount(_ context.Context, accountID string) ([]model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Student
	for _, s := range m.students {
		if s.AccountID == accountID {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastSeenAt.After(result[j].LastSeenAt) })
	return result, nil
}

func (m *mockStudentRepo) FindLatest(ctx context.Context, accountID string, studentID int64) (*model.Student, error) {
	list, _ := m.ListByAccount(ctx, accountID)
	for i := range list {
		if list[i].StudentID == studentID {
			return &list[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockStudentRepo) UpdateWorkSpeed(_ context.Context, studentID int64, institution string, speed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[studentKey(studentID, institution)]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.WorkSpeed = speed
	return nil
}

// ── Mock HomeworkRepository ──
// 与真实实现一致：冲突更新不改 is_done / completion_date，并恢复软删除的行

type mockHomeworkRepo struct {
	mu      sync.Mutex
	records map[string]*model.HomeworkRecord // key: id:institution:external_id
	deleted map[string]bool

	upsertErr        error
	setCompletionErr error
	upsertCalls      int
}

func newMockHomeworkRepo() *mockHomeworkRepo {
	return &mockHomeworkRepo{
		records: make(map[string]*model.HomeworkRecord),
		deleted: make(map[string]bool),
	}
}

func homeworkKey(studentID int64, institution string, externalID int64) string {
	return fmt.Sprintf("%d:%s:%d", studentID, institution, externalID)
}

func (m *mockHomeworkRepo) UpsertBatch(_ context.Context, records []model.HomeworkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, r := range records {
		key := homeworkKey(r.StudentID, r.Institution, r.ExternalID)
		delete(m.deleted, key)
		existing, ok := m.records[key]
		if !ok {
			cp := r
			cp.ID = int64(len(m.records) + 1)
			m.records[key] = &cp
			continue
		}
		isDone, completion := existing.IsDone, existing.CompletionDate
		id := existing.ID
		*existing = r
		existing.ID = id
		existing.IsDone, existing.CompletionDate = isDone, completion
	}
	return nil
}

func (m *mockHomeworkRepo) live(studentID int64, institution string) []model.HomeworkRecord {
	var result []model.HomeworkRecord
	for key, r := range m.records {
		if m.deleted[key] || r.StudentID != studentID || r.Institution != institution {
			continue
		}
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DueDate != result[j].DueDate {
			return result[i].DueDate < result[j].DueDate
		}
		return result[i].ExternalID < result[j].ExternalID
	})
	return result
}

func (m *mockHomeworkRepo) ListByStudent(_ context.Context, studentID int64, institution string) ([]model.HomeworkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(studentID, institution), nil
}

func (m *mockHomeworkRepo) ListByExternalIDs(_ context.Context, studentID int64, institution string, ids []int64) ([]model.HomeworkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var result []model.HomeworkRecord
	for _, r := range m.live(studentID, institution) {
		if want[r.ExternalID] {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockHomeworkRepo) ListDueFrom(_ context.Context, studentID int64, institution, from string) ([]model.HomeworkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.HomeworkRecord
	for _, r := range m.live(studentID, institution) {
		if r.DueDate >= from {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockHomeworkRepo) GetByExternalID(_ context.Context, studentID int64, institution string, externalID int64) (*model.HomeworkRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := homeworkKey(studentID, institution, externalID)
	if r, ok := m.records[key]; ok && !m.deleted[key] {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockHomeworkRepo) SetCompletion(_ context.Context, studentID int64, institution string, externalID int64, isDone bool, completion *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setCompletionErr != nil {
		return m.setCompletionErr
	}
	key := homeworkKey(studentID, institution, externalID)
	r, ok := m.records[key]
	if !ok || m.deleted[key] {
		return gorm.ErrRecordNotFound
	}
	r.IsDone = isDone
	r.CompletionDate = completion
	return nil
}

func (m *mockHomeworkRepo) ListSubjects(_ context.Context, studentID int64, institution string) ([]repository.SubjectRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var result []repository.SubjectRef
	for _, r := range m.live(studentID, institution) {
		if r.SubjectCode == "" || seen[r.SubjectCode] {
			continue
		}
		seen[r.SubjectCode] = true
		result = append(result, repository.SubjectRef{SubjectCode: r.SubjectCode, Subject: r.Subject})
	}
	return result, nil
}

func (m *mockHomeworkRepo) SoftDeleteStale(_ context.Context, syncedBefore time.Time, dueBefore string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, r := range m.records {
		if m.deleted[key] {
			continue
		}
		if r.LastSyncedAt.Before(syncedBefore) && r.DueDate < dueBefore {
			m.deleted[key] = true
			n++
		}
	}
	return n, nil
}

// put 直接写入一条记录（测试准备数据）
func (m *mockHomeworkRepo) put(r model.HomeworkRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := r
	m.records[homeworkKey(r.StudentID, r.Institution, r.ExternalID)] = &cp
}

// ── Mock SubjectWeightRepository ──

type mockSubjectWeightRepo struct {
	mu      sync.Mutex
	weights map[string]*model.SubjectWeight // key: id:subject_code
}

func newMockSubjectWeightRepo() *mockSubjectWeightRepo {
	return &mockSubjectWeightRepo{weights: make(map[string]*model.SubjectWeight)}
}

func (m *mockSubjectWeightRepo) List(_ context.Context, studentID int64) ([]model.SubjectWeight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.SubjectWeight
	for _, w := range m.weights {
		if w.StudentID == studentID {
			result = append(result, *w)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubjectCode < result[j].SubjectCode })
	return result, nil
}

func (m *mockSubjectWeightRepo) UpsertBatch(_ context.Context, weights []model.SubjectWeight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range weights {
		cp := w
		m.weights[fmt.Sprintf("%d:%s", w.StudentID, w.SubjectCode)] = &cp
	}
	return nil
}

// ── Mock ObligationRepository ──

type mockObligationRepo struct {
	mu          sync.Mutex
	obligations map[string]*model.RecurringObligation
	idCounter   int
}

func newMockObligationRepo() *mockObligationRepo {
	return &mockObligationRepo{obligations: make(map[string]*model.RecurringObligation)}
}

func (m *mockObligationRepo) List(_ context.Context, studentID int64, institution string) ([]model.RecurringObligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.RecurringObligation
	for _, o := range m.obligations {
		if o.StudentID == studentID && o.Institution == institution {
			result = append(result, *o)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ObligationID < result[j].ObligationID })
	return result, nil
}

func (m *mockObligationRepo) GetByID(_ context.Context, id string) (*model.RecurringObligation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.obligations[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockObligationRepo) create(o *model.RecurringObligation) {
	m.idCounter++
	o.ObligationID = fmt.Sprintf("obl-%03d", m.idCounter)
	o.Version = 1
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	m.obligations[o.ObligationID] = &cp
}

func (m *mockObligationRepo) Create(_ context.Context, o *model.RecurringObligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.create(o)
	return nil
}

func (m *mockObligationRepo) CreateBatch(_ context.Context, list []model.RecurringObligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range list {
		m.create(&list[i])
	}
	return nil
}

func (m *mockObligationRepo) Update(_ context.Context, o *model.RecurringObligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.obligations[o.ObligationID]
	if !ok || existing.Version != o.Version {
		return pkgerrors.ErrOptimisticLock
	}
	o.Version++
	o.UpdatedAt = time.Now()
	cp := *o
	m.obligations[o.ObligationID] = &cp
	return nil
}

func (m *mockObligationRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.obligations, id)
	return nil
}

// ── Mock WorksheetRepository ──

type mockWorksheetRepo struct {
	mu         sync.Mutex
	worksheets map[string]*model.Worksheet // key: id:institution:anchor
	links      map[string][]int64          // key: worksheet_id
	idCounter  int
	upserts    int
}

func newMockWorksheetRepo() *mockWorksheetRepo {
	return &mockWorksheetRepo{
		worksheets: make(map[string]*model.Worksheet),
		links:      make(map[string][]int64),
	}
}

func (m *mockWorksheetRepo) Upsert(_ context.Context, ws *model.Worksheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	key := fmt.Sprintf("%d:%s:%s", ws.StudentID, ws.Institution, ws.AnchorDate)
	if existing, ok := m.worksheets[key]; ok {
		existing.Budget = ws.Budget
		ws.WorksheetID = existing.WorksheetID
		return nil
	}
	m.idCounter++
	ws.WorksheetID = fmt.Sprintf("ws-%03d", m.idCounter)
	cp := *ws
	m.worksheets[key] = &cp
	return nil
}

func (m *mockWorksheetRepo) GetByAnchor(_ context.Context, studentID int64, institution, anchorDate string) (*model.Worksheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.worksheets[fmt.Sprintf("%d:%s:%s", studentID, institution, anchorDate)]; ok {
		cp := *ws
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockWorksheetRepo) ReconcileLinks(_ context.Context, ws *model.Worksheet, externalIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]bool, len(externalIDs))
	ids := make([]int64, 0, len(externalIDs))
	for _, id := range externalIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	m.links[ws.WorksheetID] = ids
	return nil
}

func (m *mockWorksheetRepo) ListLinks(_ context.Context, worksheetID string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.links[worksheetID]...), nil
}

// ── 聚合 ──

type mockRepos struct {
	account    *mockAccountRepo
	student    *mockStudentRepo
	homework   *mockHomeworkRepo
	weights    *mockSubjectWeightRepo
	obligation *mockObligationRepo
	worksheet  *mockWorksheetRepo
}

func newMockRepository() (*repository.Repository, *mockRepos) {
	m := &mockRepos{
		account:    newMockAccountRepo(),
		student:    newMockStudentRepo(),
		homework:   newMockHomeworkRepo(),
		weights:    newMockSubjectWeightRepo(),
		obligation: newMockObligationRepo(),
		worksheet:  newMockWorksheetRepo(),
	}
	return &repository.Repository{
		Account:       m.account,
		Student:       m.student,
		Homework:      m.homework,
		SubjectWeight: m.weights,
		Obligation:    m.obligation,
		Worksheet:     m.worksheet,
	}, m
}

// ── Fake Provider ──

type fakeProvider struct {
	mu          sync.Mutex
	entries     []planner.CalendarEntry
	homework    []upstream.HomeworkItem
	calendarErr error
	homeworkErr error
	calls       int

	// gate 非 nil 时 CalendarEntries 阻塞到收到信号
	gate chan struct{}
}

func (p *fakeProvider) CalendarEntries(ctx context.Context, _ upstream.Session, _, _ string) ([]planner.CalendarEntry, error) {
	p.mu.Lock()
	p.calls++
	gate := p.gate
	entries, err := p.entries, p.calendarErr
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return entries, err
}

func (p *fakeProvider) HomeworkBatch(_ context.Context, _ upstream.Session) ([]upstream.HomeworkItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.homework, p.homeworkErr
}

// ── Snapshot Cache ──

type mapSnapshotCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapSnapshotCache() *mapSnapshotCache {
	return &mapSnapshotCache{data: make(map[string][]byte)}
}

func (c *mapSnapshotCache) Save(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func (c *mapSnapshotCache) Load(_ context.Context, key string, v any) (bool, error) {
	c.mu.Lock()
	b, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, v)
}

// ── 测试辅助 ──

func testPlannerConfig() *config.PlannerConfig {
	return &config.PlannerConfig{
		Timezone:       "Europe/Paris",
		WindowDays:     28,
		StaleAfterDays: 14,
	}
}

func testStudent() StudentContext {
	return StudentContext{
		AccountID:     "acc-alice",
		StudentID:     4242,
		Institution:   "college-test",
		UpstreamToken: "tok",
	}
}

func boolPtr(b bool) *bool { return &b }

// fixedNow 规划时区下的某天 12:00
func fixedNow(date string) time.Time {
	loc := testPlannerConfig().Location()
	t, _ := time.ParseInLocation("2006-01-02 15:04", date+" 12:00", loc)
	return t
}
