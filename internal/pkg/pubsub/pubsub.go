// Package pubsub 通过 Redis 频道把 worker 进程产生的任务日志
// 转发给持有 WebSocket 订阅者的 server 进程。
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/codecrow/codecrow-server/internal/model"
)

const (
	ChannelJobEvents = "codecrow:job_events"
)

// 消息类型
const (
	TypeJobLog       = "job_log"
	TypeJobCompleted = "job_completed"
)

// JobEvent 跨进程任务事件
// Origin 标识发出事件的进程，订阅方用它过滤自己发出的回环消息
type JobEvent struct {
	Type         string             `json:"type"`
	Origin       string             `json:"origin,omitempty"`
	JobID        int64              `json:"job_id"`
	ExternalID   string             `json:"external_id"`
	Entry        *model.JobLogEntry `json:"entry,omitempty"`
	FinalStatus  string             `json:"final_status,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
	origin string
}

func NewPublisher(client *redis.Client, origin string) *Publisher {
	return &Publisher{client: client, origin: origin}
}

// PublishLog 发布一条日志行
func (p *Publisher) PublishLog(ctx context.Context, jobID int64, externalID string, entry *model.JobLogEntry) error {
	return p.publish(ctx, &JobEvent{
		Type:       TypeJobLog,
		Origin:     p.origin,
		JobID:      jobID,
		ExternalID: externalID,
		Entry:      entry,
	})
}

// PublishCompleted 发布终态事件
func (p *Publisher) PublishCompleted(ctx context.Context, jobID int64, externalID, finalStatus, errMsg string) error {
	return p.publish(ctx, &JobEvent{
		Type:         TypeJobCompleted,
		Origin:       p.origin,
		JobID:        jobID,
		ExternalID:   externalID,
		FinalStatus:  finalStatus,
		ErrorMessage: errMsg,
	})
}

func (p *Publisher) publish(ctx context.Context, ev *JobEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal job event: %w", err)
	}
	return p.client.Publish(ctx, ChannelJobEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅任务事件，阻塞直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*JobEvent)) error {
	pubsub := s.client.Subscribe(ctx, ChannelJobEvents)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var ev JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue // 忽略解析错误
			}

			handler(&ev)
		}
	}
}
