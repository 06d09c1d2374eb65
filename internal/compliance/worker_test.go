package compliance

import (
	"context"
	"testing"
	"time"

	"Sovereign-Mint/internal/ascension"
	"Sovereign-Mint/internal/wallet"
)

func TestWorkerConsumesAuditJobs(t *testing.T) {
	wallets := wallet.NewMemoryStore()
	temple := ascension.NewEngine(ascension.NewMemoryStore())
	auditor := NewAuditor(wallets, temple)
	queue := NewMemoryQueue(8)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := wallets.GetOrCreate(ctx, "queued"); err != nil {
		t.Fatalf("初始化钱包失败: %v", err)
	}

	worker := NewWorker(auditor, queue, WithWorkerCount(2))
	go func() {
		_ = worker.Start(ctx)
	}()

	job := Job{ID: "job-1", AgentID: "queued", ReportedIncome: 1000, ClaimedTax: 0, RequestedAt: time.Now().Unix()}
	payload, err := job.Encode()
	if err != nil {
		t.Fatalf("序列化任务失败: %v", err)
	}
	if err := queue.Publish(ctx, payload); err != nil {
		t.Fatalf("投递任务失败: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		w, err := wallets.Load(ctx, "queued")
		if err != nil {
			t.Fatalf("读取钱包失败: %v", err)
		}
		if w.TaxComplianceScore == 80 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("审计任务未在期限内完成, 当前分数 %v", w.TaxComplianceScore)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWorkerDropsMalformedPayload(t *testing.T) {
	wallets := wallet.NewMemoryStore()
	auditor := NewAuditor(wallets, nil)
	worker := NewWorker(auditor, NewMemoryQueue(1))

	if err := worker.handle(context.Background(), "not-json"); err != nil {
		t.Fatalf("无法解码的载荷应被静默丢弃, 实际 %v", err)
	}
}

func TestJobEncodeDecodeRoundTrip(t *testing.T) {
	job := Job{ID: "job-9", AgentID: "a", ReportedIncome: 12.5, ClaimedTax: 1.25, RequestedAt: 42}
	payload, err := job.Encode()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	decoded, err := DecodeJob(payload)
	if err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if decoded != job {
		t.Fatalf("往返结果不一致: %+v", decoded)
	}
}
