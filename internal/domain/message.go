package domain

import "encoding/json"

// ScoringMessage 是评分队列中的消息
type ScoringMessage struct {
	JobID       string          `json:"jobID" validate:"required"`
	ProblemType string          `json:"problemType" validate:"required"`
	Problem     json.RawMessage `json:"problem" validate:"required"`
}
