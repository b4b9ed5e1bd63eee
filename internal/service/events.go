package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"homework-planner/backend/pkg/redis"
)

// 事件类型
const (
	EventPreferencesChanged  = "preferences.changed"
	EventAvailabilityUpdated = "availability.updated"
	EventWorksheetUpdated    = "worksheet.updated"
	EventHomeworkMarked      = "homework.marked"
)

const eventBufferSize = 16

// Event 规划事件
type Event struct {
	Type        string    `json:"type"`
	StudentID   int64     `json:"student_id"`
	Institution string    `json:"institution"`
	Reason      string    `json:"reason,omitempty"`
	Data        any       `json:"data,omitempty"`
	At          time.Time `json:"at"`
}

// EventBus 显式发布/订阅；按学生划分频道
type EventBus interface {
	Publish(ctx context.Context, ev Event) error
	// Subscribe 订阅某学生的事件，返回的取消函数可重复调用
	Subscribe(ctx context.Context, studentID int64) (<-chan []byte, func(), error)
}

// NewEventBus Redis 可用时走 pub/sub，否则退化为进程内总线
func NewEventBus(rdb *redis.Client, logger *zap.Logger) EventBus {
	if rdb == nil {
		return NewMemoryEventBus()
	}
	return &redisEventBus{rdb: rdb, logger: logger}
}

func eventChannel(studentID int64) string {
	return fmt.Sprintf("planner:events:%d", studentID)
}

// ── Redis 实现 ──

type redisEventBus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func (b *redisEventBus) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, eventChannel(ev.StudentID), payload)
}

func (b *redisEventBus) Subscribe(ctx context.Context, studentID int64) (<-chan []byte, func(), error) {
	return b.rdb.Subscribe(ctx, eventChannel(studentID))
}

// ── 进程内实现 ──

type memoryEventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int64]map[int]chan []byte
}

// NewMemoryEventBus 进程内事件总线；订阅者处理不过来时丢弃消息
func NewMemoryEventBus() EventBus {
	return &memoryEventBus{subs: make(map[int64]map[int]chan []byte)}
}

func (b *memoryEventBus) Publish(_ context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[ev.StudentID] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (b *memoryEventBus) Subscribe(ctx context.Context, studentID int64) (<-chan []byte, func(), error) {
	ch := make(chan []byte, eventBufferSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[studentID] == nil {
		b.subs[studentID] = make(map[int]chan []byte)
	}
	b.subs[studentID][id] = ch
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subs[studentID], id)
			if len(b.subs[studentID]) == 0 {
				delete(b.subs, studentID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}
