package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/codecrow/codecrow-server/config"
	"github.com/codecrow/codecrow-server/internal/ai"
	"github.com/codecrow/codecrow-server/internal/database"
	"github.com/codecrow/codecrow-server/internal/ledger"
	"github.com/codecrow/codecrow-server/internal/pkg/cron"
	"github.com/codecrow/codecrow-server/internal/pkg/locker"
	"github.com/codecrow/codecrow-server/internal/pkg/queue"
	"github.com/codecrow/codecrow-server/internal/repository"
	"github.com/codecrow/codecrow-server/internal/vcs"
	"github.com/codecrow/codecrow-server/internal/worker"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 Queue、Ledger、锁
	jobQueue := queue.NewQueue(rdb, cfg.Queue.JobQueue)
	jobLedger := ledger.New(db, rdb)
	branchLocker := locker.New(rdb, cfg.Lock)

	// VCS 与 AI 客户端
	registry := vcs.NewRegistry(cfg.Providers)
	analyzer := ai.NewClient(cfg.Analysis)

	// 初始化 Repository
	projectRepo := repository.NewProjectRepository(db)
	jobRepo := repository.NewJobRepository(db)
	analysisRepo := repository.NewAnalysisRepository(db)
	branchIssueRepo := repository.NewBranchIssueRepository(db)
	gateRepo := repository.NewGateRepository(db)

	// 保留期清理
	cronService := cron.NewService(jobRepo, cfg.Retention)
	cronService.Start()
	defer cronService.Stop()

	// 创建任务处理器
	processor := worker.NewProcessor(
		cfg,
		jobLedger,
		branchLocker,
		registry,
		analyzer,
		projectRepo,
		analysisRepo,
		branchIssueRepo,
		gateRepo,
	)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	log.Printf("Worker started, max workers: %d", cfg.Queue.MaxWorkers)

	pool := worker.NewPool(jobQueue, processor, cfg.Queue.MaxWorkers)
	pool.Run(ctx)

	log.Println("Worker shutdown complete")
}
