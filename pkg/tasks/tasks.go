// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"strconv"
	"time"
)

// IngestionTask represents a request to (re)index one course material.
type IngestionTask struct {
	TaskID      string    `json:"task_id"`
	CourseID    uint      `json:"course_id"`
	MaterialID  uint      `json:"material_id"`
	Title       string    `json:"title"`
	ObjectName  string    `json:"object_name"`
	FileName    string    `json:"file_name"`
	Format      string    `json:"format"`
	RequestedBy uint      `json:"requested_by"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Key is the partition key; tasks for the same material are processed in order.
func (t IngestionTask) Key() string {
	return strconv.FormatUint(uint64(t.MaterialID), 10)
}
