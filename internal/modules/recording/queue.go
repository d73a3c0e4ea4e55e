package recording

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/opentalk/internal/domain"
)

// Task is handed to the recorder service.
type Task struct {
	Action  string     `json:"action"`
	Room    string     `json:"room"`
	Targets []TargetID `json:"targets"`
}

func newTask(action string, room domain.SignalingRoomID, targets []TargetID) Task {
	return Task{Action: action, Room: room.String(), Targets: targets}
}

const (
	TaskStart = "start"
	TaskPause = "pause"
	TaskStop  = "stop"
)

// TaskQueue delivers tasks to the recorder service.
type TaskQueue interface {
	Push(ctx context.Context, t Task) error
}

// RedisQueue pushes tasks onto a list consumed by the recorder.
type RedisQueue struct {
	client *redis.Client
	list   string
}

func NewRedisQueue(client *redis.Client, list string) *RedisQueue {
	return &RedisQueue{client: client, list: list}
}

func (q *RedisQueue) Push(ctx context.Context, t Task) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.list, raw).Err(); err != nil {
		return fmt.Errorf("push recorder task: %w", err)
	}
	return nil
}

// MemoryQueue keeps tasks in process for single node setups and tests.
type MemoryQueue struct {
	mu    sync.Mutex
	tasks []Task
}

func (q *MemoryQueue) Push(_ context.Context, t Task) error {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
	return nil
}

// Tasks returns the pushed tasks in order.
func (q *MemoryQueue) Tasks() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.tasks...)
}
