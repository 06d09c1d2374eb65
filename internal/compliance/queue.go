package compliance

import (
	"context"
	"encoding/json"

	xerrors "Sovereign-Mint/internal/errors"
)

// Job 是一条排队等待执行的审计任务。
type Job struct {
	ID             string  `json:"id"`
	AgentID        string  `json:"agent_id"`
	ReportedIncome float64 `json:"reported_income"`
	ClaimedTax     float64 `json:"claimed_tax"`
	RequestedAt    int64   `json:"requested_at"`
}

// Encode 将任务序列化为队列载荷。
func (j Job) Encode() (string, error) {
	raw, err := json.Marshal(j)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeQueueFailure, err, "encode audit job")
	}
	return string(raw), nil
}

// DecodeJob 从队列载荷还原任务。
func DecodeJob(payload string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return Job{}, xerrors.Wrap(xerrors.CodeQueueFailure, err, "decode audit job")
	}
	return job, nil
}

// Handler 处理来自队列的审计任务载荷。
type Handler func(ctx context.Context, payload string) error

// Producer 负责向队列投递审计任务。
type Producer interface {
	Publish(ctx context.Context, payload string) error
	Close() error
}

// Consumer 负责从队列中消费审计任务。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
