package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"homework-planner/backend/internal/dto"
	apperr "homework-planner/backend/pkg/errors"
)

// 重算触发原因
const (
	ReasonRequest            = "request"
	ReasonManualRefresh      = "manual-refresh"
	ReasonStudentChanged     = "student-changed"
	ReasonPreferencesChanged = "preferences-changed"
)

const asyncTriggerTimeout = 60 * time.Second

// ErrStaleRun 同一学生已有更新的计算开始，本次结果被丢弃
var ErrStaleRun = errors.New("已有更新的计算，本次结果已丢弃")

// Recomputer 异步触发重算
type Recomputer interface {
	TriggerAsync(sc StudentContext, reason string)
}

// Refresher 同步触发重算并返回新作业单
type Refresher interface {
	Trigger(ctx context.Context, sc StudentContext, reason string) (*dto.WorksheetResponse, error)
}

// Pipeline 评分 + 作业单重算流水线
//
// 每次触发递增该学生的代数；计算完成后若代数已变化则丢弃结果，不写入也不发布。
// 请求路径（ReasonRequest）的过期结果仍原样返回给调用方，其余原因返回 ErrStaleRun。
// 提交阶段串行执行，保证写入顺序与代数一致。
type Pipeline struct {
	planner worksheetPlanner
	bus     EventBus
	logger  *zap.Logger
	timeout time.Duration

	mu          sync.Mutex
	generations map[string]uint64
	commitMu    sync.Mutex
}

// NewPipeline 创建流水线
func NewPipeline(planner worksheetPlanner, bus EventBus, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		planner:     planner,
		bus:         bus,
		logger:      logger,
		timeout:     asyncTriggerTimeout,
		generations: make(map[string]uint64),
	}
}

// Compute 请求路径上的计算，实现 WorksheetService
func (p *Pipeline) Compute(ctx context.Context, sc StudentContext) (*dto.WorksheetResponse, error) {
	return p.Trigger(ctx, sc, ReasonRequest)
}

// Trigger 同步执行一次重算；上游降级时结果与 UpstreamUnavailable 一并返回
func (p *Pipeline) Trigger(ctx context.Context, sc StudentContext, reason string) (*dto.WorksheetResponse, error) {
	key := sc.Key()
	gen := p.begin(key)

	plan, err := p.planner.plan(ctx, sc)
	if err != nil {
		return nil, err
	}

	p.commitMu.Lock()
	defer p.commitMu.Unlock()

	if !p.isCurrent(key, gen) {
		p.logger.Debug("丢弃过期计算结果",
			zap.Int64("student_id", sc.StudentID),
			zap.String("reason", reason),
			zap.Uint64("generation", gen),
		)
		// 请求路径仍需应答：返回本次结果，但不写入也不发布
		if reason == ReasonRequest {
			return p.planner.render(plan, ""), plan.degraded
		}
		return nil, ErrStaleRun
	}

	resp, err := p.planner.commit(ctx, plan)
	if err != nil {
		return nil, err
	}

	p.publish(ctx, Event{Type: EventAvailabilityUpdated, StudentID: sc.StudentID, Institution: sc.Institution, Reason: reason, Data: plan.availability})
	p.publish(ctx, Event{Type: EventWorksheetUpdated, StudentID: sc.StudentID, Institution: sc.Institution, Reason: reason, Data: resp})
	return resp, plan.degraded
}

// TriggerAsync 后台重算，结果通过事件总线送达
func (p *Pipeline) TriggerAsync(sc StudentContext, reason string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		_, err := p.Trigger(ctx, sc, reason)
		if err != nil && !errors.Is(err, ErrStaleRun) && !errors.Is(err, apperr.ErrUpstreamUnavailable) {
			p.logger.Warn("后台重算失败",
				zap.Int64("student_id", sc.StudentID),
				zap.String("reason", reason),
				zap.Error(err),
			)
		}
	}()
}

func (p *Pipeline) begin(key string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generations[key]++
	return p.generations[key]
}

func (p *Pipeline) isCurrent(key string, gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generations[key] == gen
}

func (p *Pipeline) publish(ctx context.Context, ev Event) {
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.logger.Warn("发布事件失败", zap.String("type", ev.Type), zap.Error(err))
	}
}
