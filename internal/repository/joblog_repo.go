package repository

import (
	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/model"
)

type JobLogRepository struct {
	db *gorm.DB
}

func NewJobLogRepository(db *gorm.DB) *JobLogRepository {
	return &JobLogRepository{db: db}
}

// Append 写入一条日志行；seq 由 ledger 在任务级互斥下分配
func (r *JobLogRepository) Append(entry *model.JobLogEntry) error {
	return r.db.Create(entry).Error
}

// MaxSeq 当前任务最大序号，无日志时为 0
func (r *JobLogRepository) MaxSeq(jobID int64) (int64, error) {
	var maxSeq *int64
	err := r.db.Model(&model.JobLogEntry{}).
		Where("job_id = ?", jobID).
		Select("MAX(seq)").
		Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	if maxSeq == nil {
		return 0, nil
	}
	return *maxSeq, nil
}

// ListAfter 返回 seq 之后的全部日志，按 seq 升序（续传语义）
func (r *JobLogRepository) ListAfter(jobID, afterSeq int64) ([]*model.JobLogEntry, error) {
	var entries []*model.JobLogEntry
	err := r.db.Where("job_id = ? AND seq > ?", jobID, afterSeq).
		Order("seq ASC").
		Find(&entries).Error
	return entries, err
}

// ListPage 分页查询日志
func (r *JobLogRepository) ListPage(jobID int64, page, pageSize int) ([]*model.JobLogEntry, int64, error) {
	query := r.db.Model(&model.JobLogEntry{}).Where("job_id = ?", jobID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []*model.JobLogEntry
	err := query.Order("seq ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	return entries, total, err
}
