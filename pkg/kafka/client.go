// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"lms-assistant-go/internal/config"
	"lms-assistant-go/pkg/log"
	"lms-assistant-go/pkg/tasks"
)

func brokerList(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Producer 发送入库任务，按资料 ID 分区以保证同一资料的任务顺序执行。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokerList(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// PublishIngestion 发送一个入库任务，TaskID 与 EnqueuedAt 为空时自动补全。
func (p *Producer) PublishIngestion(ctx context.Context, task tasks.IngestionTask) (tasks.IngestionTask, error) {
	if task.TaskID == "" {
		task.TaskID = uuid.NewString()
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return task, err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Key()),
		Value: taskBytes,
	})
	if err != nil {
		return task, fmt.Errorf("发送 Kafka 消息失败: %w", err)
	}
	log.Infow("入库任务已发送", "task_id", task.TaskID, "material_id", task.MaterialID, "course_id", task.CourseID)
	return task, nil
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}
