package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"homework-planner/backend/internal/dto"
	"homework-planner/backend/internal/model"
	apperr "homework-planner/backend/pkg/errors"
)

func setupStudentService(t *testing.T) (StudentService, *mockRepos) {
	t.Helper()
	repo, mocks := newMockRepository()
	svc := NewStudentService(repo, zap.NewNop())
	_, err := svc.Upsert(context.Background(), "acc-alice", &dto.UpsertStudentRequest{
		StudentID: 4242, Institution: "college-test", FirstName: "Léa", ClassLabel: "4B",
	})
	if err != nil {
		t.Fatalf("准备学生失败: %v", err)
	}
	return svc, mocks
}

func TestStudentService_Resolve(t *testing.T) {
	svc, _ := setupStudentService(t)
	ctx := context.Background()

	sc, err := svc.Resolve(ctx, "acc-alice", "4242", "college-test", "tok")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if sc.StudentID != 4242 || sc.Institution != "college-test" || sc.UpstreamToken != "tok" {
		t.Errorf("上下文不符: %+v", sc)
	}

	// 未指定学校时取最近出现的学校
	sc, err = svc.Resolve(ctx, "acc-alice", "4242", "", "tok")
	if err != nil || sc.Institution != "college-test" {
		t.Errorf("应推断学校: %+v, %v", sc, err)
	}
}

func TestStudentService_ResolveErrors(t *testing.T) {
	svc, _ := setupStudentService(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		account     string
		studentID   string
		institution string
		want        error
	}{
		{"非数字 ID", "acc-alice", "abc", "college-test", apperr.ErrInputInvalid},
		{"负数 ID", "acc-alice", "-1", "college-test", apperr.ErrInputInvalid},
		{"未知学生", "acc-alice", "1", "college-test", ErrStudentNotFound},
		{"无法推断学校", "acc-alice", "1", "", apperr.ErrInputInvalid},
		{"他人学生", "acc-bob", "4242", "college-test", ErrStudentForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Resolve(ctx, tt.account, tt.studentID, tt.institution, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("期望 %v，实际 %v", tt.want, err)
			}
		})
	}
}

func TestStudentService_UpsertOwnedByOther(t *testing.T) {
	svc, _ := setupStudentService(t)

	_, err := svc.Upsert(context.Background(), "acc-bob", &dto.UpsertStudentRequest{StudentID: 4242, Institution: "college-test"})
	if !errors.Is(err, ErrStudentOwned) {
		t.Errorf("期望 ErrStudentOwned，实际 %v", err)
	}
}

func TestStudentService_WorkSpeed(t *testing.T) {
	svc, mocks := setupStudentService(t)
	ctx := context.Background()
	sc := testStudent()

	got, err := svc.GetWorkSpeed(ctx, sc)
	if err != nil || got.WorkSpeed != model.WorkSpeedNormal || got.Label != "Normal" {
		t.Fatalf("默认速度应为 Normal: %+v, %v", got, err)
	}
	if len(got.Options) != 3 {
		t.Errorf("应返回 3 个选项，实际 %d", len(got.Options))
	}

	got, err = svc.UpdateWorkSpeed(ctx, sc, model.WorkSpeedFast)
	if err != nil || got.Label != "Très rapide" {
		t.Fatalf("更新速度失败: %+v, %v", got, err)
	}
	stored, _ := mocks.student.Get(ctx, sc.StudentID, sc.Institution)
	if stored.WorkSpeed != model.WorkSpeedFast {
		t.Errorf("速度未持久化: %d", stored.WorkSpeed)
	}

	if _, err := svc.UpdateWorkSpeed(ctx, sc, 5); !errors.Is(err, apperr.ErrInputInvalid) {
		t.Errorf("非法速度应返回 InputInvalid，实际 %v", err)
	}
}
