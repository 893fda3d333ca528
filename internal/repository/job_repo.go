package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/model"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *model.Job) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByID(id int64) (*model.Job, error) {
	var job model.Job
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) GetByExternalID(externalID string) (*model.Job, error) {
	var job model.Job
	err := r.db.Where("external_id = ?", externalID).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) Update(job *model.Job) error {
	return r.db.Save(job).Error
}

// UpdateFields 局部更新
func (r *JobRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.Job{}).Where("id = ?", id).Updates(fields).Error
}

// UpdateFieldsIfRunning 仅当任务仍在 RUNNING 时更新，终态任务静默跳过
func (r *JobRepository) UpdateFieldsIfRunning(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobStatusRunning).
		Updates(fields).Error
}

// JobFilter 任务列表过滤条件
type JobFilter struct {
	ProjectID   int64
	WorkspaceID int64
	Status      string
	Type        string
}

// List 按条件分页查询任务
func (r *JobRepository) List(filter JobFilter, page, pageSize int) ([]*model.Job, int64, error) {
	query := r.db.Model(&model.Job{})

	if filter.ProjectID > 0 {
		query = query.Where("project_id = ?", filter.ProjectID)
	}
	if filter.WorkspaceID > 0 {
		query = query.Where("project_id IN (?)",
			r.db.Model(&model.Project{}).Select("id").Where("workspace_id = ?", filter.WorkspaceID))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []*model.Job
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&jobs).Error
	return jobs, total, err
}

// DeleteTerminalBefore 删除指定时间之前完成的任务及其日志（保留期清理）
func (r *JobRepository) DeleteTerminalBefore(cutoff time.Time) (int64, error) {
	var ids []int64
	err := r.db.Model(&model.Job{}).
		Where("status IN ? AND completed_at < ?",
			[]string{model.JobStatusCompleted, model.JobStatusFailed, model.JobStatusCancelled}, cutoff).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err = r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id IN ?", ids).Delete(&model.JobLogEntry{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&model.Job{}).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}
