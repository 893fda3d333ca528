package main

import (
	"context"
	"fmt"
	"log"

	"github.com/codecrow/codecrow-server/config"
	"github.com/codecrow/codecrow-server/internal/api"
	"github.com/codecrow/codecrow-server/internal/api/handler"
	"github.com/codecrow/codecrow-server/internal/database"
	"github.com/codecrow/codecrow-server/internal/ledger"
	"github.com/codecrow/codecrow-server/internal/pkg/pubsub"
	"github.com/codecrow/codecrow-server/internal/pkg/queue"
	"github.com/codecrow/codecrow-server/internal/repository"
	"github.com/codecrow/codecrow-server/internal/webhook"
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

	// 初始化 Queue 和 Ledger
	jobQueue := queue.NewQueue(rdb, cfg.Queue.JobQueue)
	jobLedger := ledger.New(db, rdb)

	// 订阅 worker 进程的任务事件，转发给本进程的 WebSocket 订阅者
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		if err := subscriber.Subscribe(context.Background(), jobLedger.DeliverRemote); err != nil {
			log.Printf("Job event subscription stopped: %v", err)
		}
	}()

	// 初始化 Repository
	projectRepo := repository.NewProjectRepository(db)
	jobRepo := repository.NewJobRepository(db)
	jobLogRepo := repository.NewJobLogRepository(db)
	gateRepo := repository.NewGateRepository(db)
	branchIssueRepo := repository.NewBranchIssueRepository(db)

	// 初始化 Dispatcher
	dispatcher := webhook.NewDispatcher(projectRepo, jobLedger, jobQueue, cfg.Server.PublicURL)

	// 初始化 Handler
	webhookHandler := handler.NewWebhookHandler(dispatcher)
	jobHandler := handler.NewJobHandler(jobRepo, jobLogRepo, jobLedger)
	streamHandler := handler.NewStreamHandler(jobRepo, jobLedger, cfg.JWT.Secret)
	gateHandler := handler.NewGateHandler(gateRepo, projectRepo, branchIssueRepo)

	// 初始化 Router
	router := api.NewRouter(
		webhookHandler,
		jobHandler,
		streamHandler,
		gateHandler,
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
