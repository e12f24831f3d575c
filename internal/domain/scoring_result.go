package domain

import "time"

// ScoringResult 是持久化到数据库中的评分结果
type ScoringResult struct {
	ID        int64     `json:"id"`
	Summary   Summary   `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
	Version   int32     `json:"-"`
}
