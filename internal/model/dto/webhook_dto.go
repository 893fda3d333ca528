package dto

// WebhookAccepted webhook 受理响应（202）
type WebhookAccepted struct {
	Status        string `json:"status"` // accepted / ignored
	JobID         string `json:"job_id,omitempty"`
	JobURL        string `json:"job_url,omitempty"`
	LogsStreamURL string `json:"logs_stream_url,omitempty"`
	ProjectID     int64  `json:"project_id,omitempty"`
	EventType     string `json:"event_type,omitempty"`
}

// StreamEnvelope WebSocket 日志流消息
// type: log（日志行）/ completed（终态，流结束）
type StreamEnvelope struct {
	Type         string      `json:"type"`
	Entry        interface{} `json:"entry,omitempty"`
	FinalStatus  string      `json:"final_status,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}
