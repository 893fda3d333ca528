// Package cron worker 进程内的周期性维护任务。
package cron

import (
	"log"
	"time"

	"github.com/codecrow/codecrow-server/config"
	"github.com/codecrow/codecrow-server/internal/repository"
)

type Service struct {
	jobs      *repository.JobRepository
	retention config.RetentionConfig
	interval  time.Duration
	stopChan  chan struct{}
}

func NewService(jobs *repository.JobRepository, retention config.RetentionConfig) *Service {
	return &Service{
		jobs:      jobs,
		retention: retention,
		interval:  time.Hour,
		stopChan:  make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runRetentionSweep()
	log.Println("Cron service started (job retention sweep)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runRetentionSweep 每小时清理一次超出保留期的终态任务
func (s *Service) runRetentionSweep() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	days := s.retention.JobDays
	if days <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	deleted, err := s.jobs.DeleteTerminalBefore(cutoff)
	if err != nil {
		log.Printf("Retention sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Retention sweep: deleted %d terminal jobs older than %d days", deleted, days)
	}
}

// RunNow 立即执行一次保留期清理（手动触发或测试用）
func (s *Service) RunNow() (int64, error) {
	if s.retention.JobDays <= 0 {
		return 0, nil
	}
	return s.jobs.DeleteTerminalBefore(time.Now().AddDate(0, 0, -s.retention.JobDays))
}
