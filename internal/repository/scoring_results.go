package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/constraint"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/score"
)

// InsertScoringResult 保存任务的评分结果，同一任务之前的结果会被覆盖
func (r *Repository) InsertScoringResult(ctx context.Context, result *domain.ScoringResult) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 先将之前的评分结果删除，约束明细通过外键级联删除
	query := `DELETE FROM scoring_results WHERE job_id = $1`
	if _, err := tx.ExecContext(ctx, query, result.Summary.JobID); err != nil {
		return mapError(err)
	}

	query = `
		INSERT INTO scoring_results (job_id, problem_type, score, feasible)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, version
	`

	s := result.Summary
	args := []any{s.JobID, s.ProblemType, s.Score.String(), s.Feasible}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&result.ID, &result.CreatedAt, &result.Version); err != nil {
		return mapError(err)
	}

	for position, a := range s.Constraints {
		matches, err := json.Marshal(a.Matches)
		if err != nil {
			return err
		}

		query := `
			INSERT INTO scoring_result_constraints (scoring_result_id, position, name, weight, score, matches)
			VALUES ($1, $2, $3, $4, $5, $6)
		`

		args := []any{result.ID, position, a.Name, a.Weight.String(), a.Score.String(), matches}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return mapError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetScoringResultByJobID(ctx context.Context, jobID string) (*domain.ScoringResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		SELECT
			sr.id,
			sr.problem_type,
			sr.score,
			sr.feasible,
			src.name,
			src.weight,
			src.score,
			src.matches,
			sr.created_at,
			sr.version
		FROM scoring_results sr
		LEFT JOIN scoring_result_constraints src ON sr.id = src.scoring_result_id
		WHERE sr.job_id = $1
		ORDER BY src.position
	`

	rows, err := r.dbpool.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	result := &domain.ScoringResult{
		Summary: domain.Summary{
			JobID:       jobID,
			Constraints: make([]constraint.Analysis, 0),
		},
	}

	for rows.Next() {
		var row struct {
			resultID         int64
			problemType      string
			score            string
			feasible         bool
			constraintName   sql.NullString
			constraintWeight sql.NullString
			constraintScore  sql.NullString
			matches          []byte
			createdAt        time.Time
			version          int32
		}

		dst := []any{
			&row.resultID,
			&row.problemType,
			&row.score,
			&row.feasible,
			&row.constraintName,
			&row.constraintWeight,
			&row.constraintScore,
			&row.matches,
			&row.createdAt,
			&row.version,
		}

		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}

		if result.ID == 0 {
			total, err := score.Parse(row.score)
			if err != nil {
				return nil, err
			}
			result.ID = row.resultID
			result.Summary.ProblemType = row.problemType
			result.Summary.Score = total
			result.Summary.Feasible = row.feasible
			result.CreatedAt = row.createdAt
			result.Version = row.version
		}

		if !row.constraintName.Valid {
			// 没有任何约束的问题也是合法的
			continue
		}

		a, err := analysisFromRow(row.constraintName.String, row.constraintWeight.String, row.constraintScore.String, row.matches)
		if err != nil {
			return nil, err
		}
		result.Summary.Constraints = append(result.Summary.Constraints, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if result.ID == 0 {
		return nil, mapError(sql.ErrNoRows)
	}

	return result, nil
}

func analysisFromRow(name, weight, total string, matches []byte) (constraint.Analysis, error) {
	a := constraint.Analysis{Name: name, Matches: make([]constraint.MatchAnalysis, 0)}

	var err error
	if a.Weight, err = score.Parse(weight); err != nil {
		return a, err
	}
	if a.Score, err = score.Parse(total); err != nil {
		return a, err
	}
	if len(matches) > 0 {
		if err := json.Unmarshal(matches, &a.Matches); err != nil {
			return a, err
		}
	}
	return a, nil
}

func (r *Repository) DeleteScoringResult(ctx context.Context, jobID string) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `DELETE FROM scoring_results WHERE job_id = $1`
	res, err := r.dbpool.ExecContext(ctx, query, jobID)
	if err != nil {
		return mapError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return mapError(sql.ErrNoRows)
	}

	return nil
}
