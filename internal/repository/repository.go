package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sysu-ecnc-dev/shift-manager/planner/internal/config"
)

var (
	ErrRecordNotFound       = errors.New("记录不存在")
	ErrDuplicateJob         = errors.New("任务的评分结果已经存在")
	ErrDuplicateConstraint  = errors.New("同一评分结果中的约束名称重复")
	ErrMissingScoringResult = errors.New("约束所属的评分结果不存在")
)

type Repository struct {
	cfg    *config.Config
	dbpool *sql.DB
}

func NewRepository(cfg *config.Config, dbpool *sql.DB) *Repository {
	return &Repository{
		cfg:    cfg,
		dbpool: dbpool,
	}
}

// mapError 把数据库错误转换为 repository 的哨兵错误，原始错误仍然保留在链中
func mapError(err error) error {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return errors.Join(ErrRecordNotFound, err)
	case errors.As(err, &pgErr):
		switch pgErr.ConstraintName {
		case "scoring_results_job_id_key":
			return errors.Join(ErrDuplicateJob, err)
		case "scoring_result_constraints_scoring_result_id_name_key":
			return errors.Join(ErrDuplicateConstraint, err)
		case "scoring_result_constraints_scoring_result_id_fkey":
			return errors.Join(ErrMissingScoringResult, err)
		}
	}
	return err
}
