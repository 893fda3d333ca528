package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/codecrow/codecrow-server/config"
	"github.com/codecrow/codecrow-server/internal/database"
	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/repository"
)

var (
	dryRun  = flag.Bool("dry-run", true, "Dry run mode, don't actually delete rows")
	jobDays = flag.Int("job-days", 0, "Days to keep terminal jobs, 0 = use config value")
)

func main() {
	flag.Parse()

	log.Println("Starting retention cleanup...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	keepDays := cfg.Retention.JobDays
	if *jobDays > 0 {
		keepDays = *jobDays
	}
	cutoff := time.Now().AddDate(0, 0, -keepDays)

	// 连接数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	jobRepo := repository.NewJobRepository(db)

	if *dryRun {
		var count int64
		err := db.Model(&model.Job{}).
			Where("status IN ? AND completed_at < ?",
				[]string{model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled}, cutoff).
			Count(&count).Error
		if err != nil {
			log.Fatalf("Failed to count expired jobs: %v", err)
		}
		log.Printf("Would delete %d terminal jobs completed before %s", count, cutoff.Format(time.RFC3339))
		log.Println("DRY RUN MODE - no rows were deleted, run with -dry-run=false to delete")
		return
	}

	deleted, err := jobRepo.DeleteTerminalBefore(cutoff)
	if err != nil {
		log.Fatalf("Failed to delete expired jobs: %v", err)
	}
	log.Printf("Deleted %d terminal jobs (and their logs) completed before %s",
		deleted, cutoff.Format(time.RFC3339))
}
