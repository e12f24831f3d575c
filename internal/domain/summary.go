package domain

import (
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/constraint"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/director"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/score"
)

// Summary 是一次评分的结果
type Summary struct {
	JobID       string                `json:"jobID"`
	ProblemType string                `json:"problemType"`
	Score       score.Score           `json:"score"`
	Feasible    bool                  `json:"feasible"`
	Constraints []constraint.Analysis `json:"constraints"`
}

func Summarize(jobID, problemType string, d *director.Director) Summary {
	analyses := d.Matches()
	total := d.RecomputeScore()
	return Summary{
		JobID:       jobID,
		ProblemType: problemType,
		Score:       total,
		Feasible:    total.IsFeasible(),
		Constraints: analyses,
	}
}
