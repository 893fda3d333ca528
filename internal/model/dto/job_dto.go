package dto

// ListJobsRequest 任务列表查询参数
type ListJobsRequest struct {
	ProjectID   int64  `form:"project_id"`
	WorkspaceID int64  `form:"workspace_id"`
	Status      string `form:"status"`
	Type        string `form:"type"`
	Page        int    `form:"page,default=1"`
	PageSize    int    `form:"page_size,default=20"`
}

// JobLogsRequest 日志查询参数
// AfterSeq > 0 时返回 seq 之后的全部日志（续传语义），否则按页返回
type JobLogsRequest struct {
	AfterSeq int64 `form:"after_seq"`
	Page     int   `form:"page,default=1"`
	PageSize int   `form:"page_size,default=100"`
}
