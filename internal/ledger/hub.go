package ledger

import (
	"log"
	"sync"

	"github.com/codecrow/codecrow-server/internal/model"
)

// 事件类型
const (
	EventLog       = "log"
	EventCompleted = "completed"
)

// Event 推送给订阅者的任务事件
type Event struct {
	Type         string             `json:"type"`
	Entry        *model.JobLogEntry `json:"entry,omitempty"`
	FinalStatus  string             `json:"final_status,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// Subscription 单个订阅者
// 事件通过带缓冲的 channel 投递；消费跟不上时丢弃并计数，
// 绝不阻塞生产方或其他订阅者
type Subscription struct {
	C       chan Event
	jobID   int64
	dropped int
	closed  bool
	mu      sync.Mutex
}

func newSubscription(jobID int64, buffer int) *Subscription {
	return &Subscription{
		C:     make(chan Event, buffer),
		jobID: jobID,
	}
}

// deliver 非阻塞投递
func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.C <- ev:
	default:
		s.dropped++
		if s.dropped == 1 {
			log.Printf("ledger: subscriber for job %d is too slow, dropping events", s.jobID)
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.C)
}

// hub 每个任务的订阅者注册表
// 结构与并发约定同 ws.Hub：注册/注销走写锁，投递前拷贝引用避免长时间持锁
type hub struct {
	subscribers map[int64]map[*Subscription]struct{}
	mu          sync.RWMutex
}

func newHub() *hub {
	return &hub{
		subscribers: make(map[int64]map[*Subscription]struct{}),
	}
}

func (h *hub) add(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[sub.jobID] == nil {
		h.subscribers[sub.jobID] = make(map[*Subscription]struct{})
	}
	h.subscribers[sub.jobID][sub] = struct{}{}
}

func (h *hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subscribers[sub.jobID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subscribers, sub.jobID)
		}
	}
	sub.close()
}

// publish 向任务的所有订阅者投递事件
func (h *hub) publish(jobID int64, ev Event) {
	h.mu.RLock()
	subs, ok := h.subscribers[jobID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	// 复制一份引用，避免投递期间持锁
	targets := make([]*Subscription, 0, len(subs))
	for s := range subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.deliver(ev)
	}
}

// closeJob 投递终态事件后丢弃该任务的全部订阅者，避免泄漏
func (h *hub) closeJob(jobID int64, final Event) {
	h.mu.Lock()
	subs, ok := h.subscribers[jobID]
	if ok {
		delete(h.subscribers, jobID)
	}
	h.mu.Unlock()

	for s := range subs {
		s.deliver(final)
		s.close()
	}
}

func (h *hub) subscriberCount(jobID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[jobID])
}
