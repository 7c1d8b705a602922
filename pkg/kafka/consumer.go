package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"lms-assistant-go/internal/config"
	"lms-assistant-go/internal/model"
	"lms-assistant-go/pkg/log"
	"lms-assistant-go/pkg/tasks"
)

// TaskHandler 由入库流水线实现，使 consumer 与具体实现解耦。
type TaskHandler interface {
	Process(ctx context.Context, task tasks.IngestionTask) error
	// GiveUp 在任务不再重试时调用，用于落地最终失败状态。
	GiveUp(ctx context.Context, task tasks.IngestionTask, err error)
}

// AttemptCounter 跨进程记录任务失败次数，进程重启后计数仍然有效。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeGiveUp
)

// decide 根据处理结果与已失败次数决定消息去向。
// ErrIngest 是文档本身的问题，重试没有意义。
func decide(err error, attempts int64, maxAttempts int) outcome {
	switch {
	case err == nil:
		return outcomeDone
	case errors.Is(err, model.ErrIngest):
		return outcomeGiveUp
	case attempts >= int64(maxAttempts):
		return outcomeGiveUp
	default:
		return outcomeRetry
	}
}

func attemptsKey(task tasks.IngestionTask) string {
	return fmt.Sprintf("kafka:attempts:%d", task.MaterialID)
}

// Consumer 以消费组方式运行若干 worker。
type Consumer struct {
	cfg      config.KafkaConfig
	handler  TaskHandler
	attempts AttemptCounter
	backoff  time.Duration
}

// NewConsumer 创建消费者。MaxAttempts 缺省为 3。
func NewConsumer(cfg config.KafkaConfig, handler TaskHandler, attempts AttemptCounter) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Consumer{cfg: cfg, handler: handler, attempts: attempts, backoff: 2 * time.Second}
}

// Run 阻塞直到 ctx 被取消且所有 worker 退出。
func (c *Consumer) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			c.runWorker(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (c *Consumer) runWorker(ctx context.Context, worker int) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokerList(c.cfg.Brokers),
		Topic:    c.cfg.Topic,
		GroupID:  c.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者 #%d 已启动，正在监听主题 '%s'", worker, c.cfg.Topic)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Infof("Kafka 消费者 #%d 退出", worker)
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			if !sleepCtx(ctx, c.backoff) {
				return
			}
			continue
		}

		c.handleMessage(ctx, m.Value)
		if ctx.Err() != nil {
			// 关闭过程中未完成的消息不提交，重启后重新投递
			return
		}
		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}

// handleMessage 处理一条消息直到成功或放弃。返回后消息即可提交。
func (c *Consumer) handleMessage(ctx context.Context, value []byte) {
	var task tasks.IngestionTask
	if err := json.Unmarshal(value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return
	}

	key := attemptsKey(task)
	for {
		log.Infow("开始处理入库任务", "task_id", task.TaskID, "material_id", task.MaterialID)
		err := c.handler.Process(ctx, task)
		if ctx.Err() != nil {
			return
		}

		var attempts int64
		if err != nil && !errors.Is(err, model.ErrIngest) {
			n, incErr := c.attempts.Incr(ctx, key)
			if incErr != nil {
				// Redis 异常时按已达上限处理，避免无限重试
				log.Error("记录失败次数失败", incErr)
				n = int64(c.cfg.MaxAttempts)
			}
			attempts = n
		}

		switch decide(err, attempts, c.cfg.MaxAttempts) {
		case outcomeDone:
			log.Infow("入库任务处理成功", "task_id", task.TaskID, "material_id", task.MaterialID)
			_ = c.attempts.Reset(ctx, key)
			return
		case outcomeGiveUp:
			log.Errorf("入库任务失败且不再重试: material_id=%d, attempts=%d, error=%v", task.MaterialID, attempts, err)
			_ = c.attempts.Reset(ctx, key)
			c.handler.GiveUp(ctx, task, err)
			return
		case outcomeRetry:
			log.Warnw("入库任务失败，稍后重试", "material_id", task.MaterialID, "attempts", attempts, "error", err)
			if !sleepCtx(ctx, c.backoff*time.Duration(attempts)) {
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
