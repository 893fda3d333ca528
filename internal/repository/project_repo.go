package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/model"
)

type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(project *model.Project) error {
	return r.db.Create(project).Error
}

func (r *ProjectRepository) GetByID(id int64) (*model.Project, error) {
	var project model.Project
	err := r.db.Where("id = ?", id).First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// GetByProviderRepo webhook 归属解析：按 (provider, external repo id) 查找项目
// 未接入的仓库返回 (nil, nil)，由调用方决定忽略还是报错
func (r *ProjectRepository) GetByProviderRepo(provider, externalRepoID string) (*model.Project, error) {
	var project model.Project
	err := r.db.Where("provider = ? AND external_repo_id = ? AND active = ?", provider, externalRepoID, true).
		First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *ProjectRepository) Update(project *model.Project) error {
	return r.db.Save(project).Error
}
