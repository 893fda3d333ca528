package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/model"
)

type GateRepository struct {
	db *gorm.DB
}

func NewGateRepository(db *gorm.DB) *GateRepository {
	return &GateRepository{db: db}
}

func (r *GateRepository) Create(gate *model.QualityGate) error {
	return r.db.Create(gate).Error
}

func (r *GateRepository) GetByID(id int64) (*model.QualityGate, error) {
	var gate model.QualityGate
	err := r.db.Preload("Conditions").Where("id = ?", id).First(&gate).Error
	if err != nil {
		return nil, err
	}
	return &gate, nil
}

// GetActiveForProject 取项目生效的质量门：
// 项目绑定的优先，其次 workspace 默认；都没有返回 nil（未配置，区别于通过）
func (r *GateRepository) GetActiveForProject(workspaceID, projectID int64) (*model.QualityGate, error) {
	var gate model.QualityGate
	err := r.db.Preload("Conditions").
		Where("project_id = ? AND active = ?", projectID, true).
		First(&gate).Error
	if err == nil {
		return &gate, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = r.db.Preload("Conditions").
		Where("workspace_id = ? AND is_default = ? AND active = ? AND project_id IS NULL", workspaceID, true, true).
		First(&gate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gate, nil
}

// ListByWorkspace workspace 下全部质量门
func (r *GateRepository) ListByWorkspace(workspaceID int64) ([]*model.QualityGate, error) {
	var gates []*model.QualityGate
	err := r.db.Preload("Conditions").
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").
		Find(&gates).Error
	return gates, err
}
