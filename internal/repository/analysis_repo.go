package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/model"
)

type AnalysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// CreateWithIssues 一个事务内写入分析结果和全部问题，
// 避免 AI 响应解析失败时留下半截数据
func (r *AnalysisRepository) CreateWithIssues(analysis *model.CodeAnalysis, issues []*model.CodeAnalysisIssue) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(analysis).Error; err != nil {
			return err
		}
		for _, issue := range issues {
			issue.CodeAnalysisID = analysis.ID
		}
		if len(issues) > 0 {
			if err := tx.Create(&issues).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *AnalysisRepository) GetByID(id int64) (*model.CodeAnalysis, error) {
	var analysis model.CodeAnalysis
	err := r.db.Where("id = ?", id).First(&analysis).Error
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

func (r *AnalysisRepository) Update(analysis *model.CodeAnalysis) error {
	return r.db.Save(analysis).Error
}

// FindByFingerprint 幂等检查：同目标、同指纹的历史运行
func (r *AnalysisRepository) FindByFingerprint(projectID int64, branch, commitHash, fp string) (*model.CodeAnalysis, error) {
	if fp == "" {
		return nil, nil
	}
	var analysis model.CodeAnalysis
	err := r.db.Where("project_id = ? AND branch = ? AND commit_hash = ? AND fingerprint = ?",
		projectID, branch, commitHash, fp).
		Order("created_at DESC").
		First(&analysis).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

// ListIssues 某次运行的全部问题
func (r *AnalysisRepository) ListIssues(analysisID int64) ([]*model.CodeAnalysisIssue, error) {
	var issues []*model.CodeAnalysisIssue
	err := r.db.Where("code_analysis_id = ?", analysisID).
		Order("severity ASC, file_path ASC").
		Find(&issues).Error
	return issues, err
}
