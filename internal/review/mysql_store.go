package review

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	xerrors "CouncilChain/internal/errors"
	"github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 记录评审工单状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS review_jobs (
        id VARCHAR(64) PRIMARY KEY,
        url TEXT NOT NULL,
        notes TEXT,
        metadata TEXT,
        status VARCHAR(32) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        result_content_type VARCHAR(64) DEFAULT '',
        result_approved TINYINT(1) NOT NULL DEFAULT 0,
        result_approvals INT NOT NULL DEFAULT 0,
        result_rejections INT NOT NULL DEFAULT 0,
        result_rate DOUBLE NOT NULL DEFAULT 0,
        result_summary TEXT,
        result_chain_id VARCHAR(66) DEFAULT '',
        result_block_number VARCHAR(66) DEFAULT '',
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_review_status (status),
        INDEX idx_review_updated (updated_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 review_jobs 表失败")
	}
	if _, err := s.db.Exec(`ALTER TABLE review_jobs ADD COLUMN metadata TEXT AFTER notes`); err != nil {
		var mysqlErr *mysql.MySQLError
		if !(stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1060) {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "扩展 review_jobs.metadata 失败")
		}
	}
	return nil
}

// Create 插入新的工单记录。
func (s *MySQLStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "job 不能为空")
	}
	if strings.TrimSpace(job.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "工单 ID 不能为空")
	}

	now := time.Now().Unix()
	job.CreatedAt = now
	job.UpdatedAt = now

	metadataValue, err := marshalMetadata(job.Metadata)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码工单 metadata 失败")
	}

	const stmt = `INSERT INTO review_jobs
        (id, url, notes, metadata, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		job.ID,
		job.URL,
		job.Notes,
		metadataValue,
		job.Status,
		job.Attempts,
		job.MaxRetries,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrReviewConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入工单失败")
	}
	return nil
}

// Get 查询指定工单。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Job, error) {
	const stmt = `SELECT id, url, notes, metadata, status, attempts, max_retries, last_error, error_code,
        result_content_type, result_approved, result_approvals, result_rejections, result_rate,
        result_summary, result_chain_id, result_block_number, created_at, updated_at
        FROM review_jobs WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)

	job, err := scanJob(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询工单失败")
	}
	return job, nil
}

// Claim 将工单标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Job, error) {
	const updateStmt = `UPDATE review_jobs SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		now,
		id,
		StatusPending,
		StatusFailed,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新工单状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		job, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		switch job.Status {
		case StatusSucceeded:
			return job, ErrReviewCompleted
		case StatusRunning:
			return job, ErrReviewConflict
		default:
			if job.Attempts >= job.MaxRetries {
				return job, ErrReviewExhausted
			}
			return job, ErrReviewConflict
		}
	}
	return s.Get(ctx, id)
}

// MarkSucceeded 将工单标记为成功并落盘议会结论。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result VerdictSummary) error {
	const stmt = `UPDATE review_jobs SET status = ?, result_content_type = ?, result_approved = ?, result_approvals = ?,
        result_rejections = ?, result_rate = ?, result_summary = ?, result_chain_id = ?, result_block_number = ?,
        updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusSucceeded,
		result.ContentType,
		result.Approved,
		result.ApprovalCount,
		result.RejectCount,
		result.ApprovalRate,
		result.Summary,
		result.ChainID,
		result.BlockNumber,
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记工单成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// MarkFailed 将工单标记为失败，并在必要时终止重试。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	const stmt = `UPDATE review_jobs SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusFailed,
		lastError,
		string(code),
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记工单失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrReviewNotFound
	}
	return nil
}

// List 返回最近的工单。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	opts.applyDefaults()

	query := `SELECT id, url, notes, metadata, status, attempts, max_retries, last_error, error_code,
        result_content_type, result_approved, result_approvals, result_rejections, result_rate,
        result_summary, result_chain_id, result_block_number, created_at, updated_at FROM review_jobs`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, created_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, created_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询工单列表失败")
	}
	defer rows.Close()

	jobs := make([]*Job, 0, opts.Limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析工单记录失败")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历工单失败")
	}
	return jobs, nil
}

// Stats 返回符合过滤条件的工单聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (JobStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS pending,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS running,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS succeeded,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed,
        SUM(CASE WHEN status = ? AND result_approved = 1 THEN 1 ELSE 0 END) AS approved,
        SUM(CASE WHEN status = ? AND result_approved = 0 THEN 1 ELSE 0 END) AS rejected,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM review_jobs`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{
		string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed),
		string(StatusSucceeded), string(StatusSucceeded),
	}
	args = append(args, filterArgs...)

	row := s.db.QueryRowContext(ctx, query, args...)

	var stats JobStats
	if err := row.Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.Approved,
		&stats.Rejected,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return JobStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询工单统计失败")
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var result VerdictSummary
	var metadata sql.NullString

	if err := row.Scan(
		&job.ID,
		&job.URL,
		&job.Notes,
		&metadata,
		&job.Status,
		&job.Attempts,
		&job.MaxRetries,
		&job.LastError,
		&job.ErrorCode,
		&result.ContentType,
		&result.Approved,
		&result.ApprovalCount,
		&result.RejectCount,
		&result.ApprovalRate,
		&result.Summary,
		&result.ChainID,
		&result.BlockNumber,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	decodedMetadata, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, fmt.Errorf("解析工单 metadata 失败: %w", err)
	}
	job.Metadata = cloneMetadata(decodedMetadata)

	if result.ContentType != "" || result.Summary != "" || result.ChainID != "" || result.BlockNumber != "" {
		job.Result = &result
	}
	return &job, nil
}

func marshalMetadata(metadata map[string]any) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	bytes, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes), Valid: true}, nil
}

func unmarshalMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for range opts.Statuses {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
		for _, status := range opts.Statuses {
			args = append(args, status)
		}
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if opts.HasResult != nil {
		if *opts.HasResult {
			conditions = append(conditions, "(result_content_type <> '' OR result_summary <> '' OR result_chain_id <> '' OR result_block_number <> '')")
		} else {
			conditions = append(conditions, "(result_content_type = '' AND (result_summary IS NULL OR result_summary = '') AND result_chain_id = '' AND result_block_number = '')")
		}
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR url LIKE ? OR notes LIKE ? OR metadata LIKE ? OR last_error LIKE ? OR result_summary LIKE ? OR result_chain_id LIKE ? OR result_block_number LIKE ?)")
		args = append(args,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
		)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
