package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/model"
)

type BranchIssueRepository struct {
	db *gorm.DB
}

func NewBranchIssueRepository(db *gorm.DB) *BranchIssueRepository {
	return &BranchIssueRepository{db: db}
}

// ListUnresolved 分支上全部未解决问题
func (r *BranchIssueRepository) ListUnresolved(projectID int64, branch string) ([]*model.BranchIssue, error) {
	var issues []*model.BranchIssue
	err := r.db.Where("project_id = ? AND branch = ? AND resolved = ?", projectID, branch, false).
		Order("created_at ASC").
		Find(&issues).Error
	return issues, err
}

// ListAll 分支上全部问题，不分页（新问题计数用）
func (r *BranchIssueRepository) ListAll(projectID int64, branch string) ([]*model.BranchIssue, error) {
	var issues []*model.BranchIssue
	err := r.db.Where("project_id = ? AND branch = ?", projectID, branch).
		Find(&issues).Error
	return issues, err
}

// ListByBranch 分支上全部问题（含已解决）
func (r *BranchIssueRepository) ListByBranch(projectID int64, branch string, page, pageSize int) ([]*model.BranchIssue, int64, error) {
	query := r.db.Model(&model.BranchIssue{}).Where("project_id = ? AND branch = ?", projectID, branch)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var issues []*model.BranchIssue
	err := query.Order("resolved ASC, created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&issues).Error
	return issues, total, err
}

// SyncResult 一次同步的统计
type SyncResult struct {
	NewCount      int
	ResolvedCount int
}

// Resolution 权威解决状态变更的出处信息
type Resolution struct {
	PRNumber   *int
	CommitHash string
	Actor      string
	Note       string
}

// Sync 把一次分析的发现合并进分支问题集（单事务）
//
// 按 ContentHash 去重：没出现过的发现新建；changedFiles 中出现过、
// 但本次发现里不再出现的未解决问题标记为已解决（带出处）。
// 这是唯一允许修改 Resolved 的路径，由合并触发的分支分析调用。
func (r *BranchIssueRepository) Sync(projectID int64, branch string, found []*model.BranchIssue, changedFiles map[string]struct{}, res Resolution) (*SyncResult, error) {
	result := &SyncResult{}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing []*model.BranchIssue
		if err := tx.Where("project_id = ? AND branch = ?", projectID, branch).Find(&existing).Error; err != nil {
			return err
		}

		byHash := make(map[string]*model.BranchIssue, len(existing))
		for _, issue := range existing {
			byHash[issue.ContentHash] = issue
		}

		foundHashes := make(map[string]struct{}, len(found))
		for _, f := range found {
			foundHashes[f.ContentHash] = struct{}{}

			if prev, ok := byHash[f.ContentHash]; ok {
				// 已跟踪：问题又出现则撤销解决标记
				if prev.Resolved {
					prev.Resolved = false
					prev.ResolvedByPR = nil
					prev.ResolvedCommit = ""
					prev.ResolvedBy = ""
					prev.ResolutionNote = ""
					prev.ResolvedAt = nil
					if err := tx.Save(prev).Error; err != nil {
						return err
					}
				}
				continue
			}

			f.ProjectID = projectID
			f.Branch = branch
			if err := tx.Create(f).Error; err != nil {
				return err
			}
			result.NewCount++
		}

		// 被改动的文件中不再报告的问题 → 已解决
		now := time.Now()
		for _, prev := range existing {
			if prev.Resolved {
				continue
			}
			if _, stillFound := foundHashes[prev.ContentHash]; stillFound {
				continue
			}
			if _, touched := changedFiles[prev.FilePath]; !touched {
				continue
			}

			prev.Resolved = true
			prev.ResolvedByPR = res.PRNumber
			prev.ResolvedCommit = res.CommitHash
			prev.ResolvedBy = res.Actor
			prev.ResolutionNote = res.Note
			prev.ResolvedAt = &now
			if err := tx.Save(prev).Error; err != nil {
				return err
			}
			result.ResolvedCount++
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SeverityCounts 未解决问题按级别计数（质量门重算用，不缓存）
func (r *BranchIssueRepository) SeverityCounts(projectID int64, branch string) (map[string]int, error) {
	type row struct {
		Severity string
		Count    int
	}
	var rows []row
	err := r.db.Model(&model.BranchIssue{}).
		Select("severity, COUNT(*) as count").
		Where("project_id = ? AND branch = ? AND resolved = ?", projectID, branch, false).
		Group("severity").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Severity] = r.Count
	}
	return counts, nil
}

// ResolvedCount 已解决问题数
func (r *BranchIssueRepository) ResolvedCount(projectID int64, branch string) (int64, error) {
	var count int64
	err := r.db.Model(&model.BranchIssue{}).
		Where("project_id = ? AND branch = ? AND resolved = ?", projectID, branch, true).
		Count(&count).Error
	return count, err
}
