// Package queue webhook 受理与后台执行之间的交接队列。
//
// HTTP 侧创建 Job 后立即入队返回 202，worker 进程消费后执行分析，
// 两侧不共享任何事务或连接上下文。
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Queue struct {
	client    *redis.Client
	queueName string
}

// JobMessage 交接消息，只携带定位信息，完整状态以数据库为准
type JobMessage struct {
	JobID         int64  `json:"job_id"`
	ExternalID    string `json:"external_id"`
	ProjectID     int64  `json:"project_id"`
	Type          string `json:"type"`
	TriggerSource string `json:"trigger_source"`
	Branch        string `json:"branch,omitempty"`
	SourceBranch  string `json:"source_branch,omitempty"`
	PRNumber      *int   `json:"pr_number,omitempty"`
	CommitHash    string `json:"commit_hash,omitempty"`
	CommandArg    string `json:"command_arg,omitempty"`
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Push 将任务加入队列
func (q *Queue) Push(ctx context.Context, msg *JobMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Pop 从队列获取任务（阻塞）
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*JobMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // 超时，无任务
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg JobMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}
