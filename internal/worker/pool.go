package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/codecrow/codecrow-server/internal/pkg/queue"
)

// Pool 队列消费者池
type Pool struct {
	queue     *queue.Queue
	processor *Processor
	workers   int
}

func NewPool(q *queue.Queue, p *Processor, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{queue: q, processor: p, workers: workers}
}

// Run 启动消费循环，阻塞直到 ctx 取消且所有 worker 退出
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	log.Printf("worker: pool started with %d workers", p.workers)
	wg.Wait()
	log.Printf("worker: pool stopped")
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := p.queue.Pop(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("worker %d: pop failed: %v", id, err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue // 队列空，继续等
		}

		// Process 内部已把失败写进账本，这里只记录
		if err := p.processor.Process(ctx, msg); err != nil {
			log.Printf("worker %d: job %d failed: %v", id, msg.JobID, err)
		}
	}
}
