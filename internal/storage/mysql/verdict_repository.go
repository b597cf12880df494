package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// VerdictRecord 表示一次议会评审的落库结构。
type VerdictRecord struct {
	ReviewID      string  `json:"review_id"`
	ContentType   string  `json:"content_type"`
	Approved      bool    `json:"approved"`
	ApprovalCount int     `json:"approval_count"`
	RejectCount   int     `json:"reject_count"`
	ApprovalRate  float64 `json:"approval_rate"`
	RiskLevel     string  `json:"risk_level"`
	Votes         string  `json:"votes"`
	ChainID       string  `json:"chain_id"`
	BlockNumber   string  `json:"block_number"`
	CreatedAt     int64   `json:"created_at"`
}

// VerdictRepository 抽象议会台账的持久化接口。
type VerdictRepository interface {
	Save(ctx context.Context, record VerdictRecord) error
	GetByReviewID(ctx context.Context, reviewID string) (*VerdictRecord, error)
	ListLatest(ctx context.Context, limit int) ([]VerdictRecord, error)
	Close() error
}

// ErrVerdictNotFound 表示指定的台账记录不存在。
var ErrVerdictNotFound = errors.New("verdict record not found")

// MemoryVerdictRepository 使用本地 JSON 文件模拟 MySQL 的效果，方便迭代开发。
type MemoryVerdictRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []VerdictRecord
}

// NewMemoryVerdictRepository 创建一个内存台账仓库。
func NewMemoryVerdictRepository(dataDir string) (*MemoryVerdictRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "verdicts.log")
	repo := &MemoryVerdictRepository{dataFile: path}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录议会结论。
func (m *MemoryVerdictRepository) Save(_ context.Context, record VerdictRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开台账日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化台账记录失败: %w", err)
	}

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入台账日志失败: %w", err)
	}

	m.records = append([]VerdictRecord{record}, m.records...)
	if len(m.records) > 512 {
		m.records = m.records[:512]
	}
	return nil
}

// GetByReviewID 按工单 ID 查询台账记录。
func (m *MemoryVerdictRepository) GetByReviewID(_ context.Context, reviewID string) (*VerdictRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, record := range m.records {
		if record.ReviewID == reviewID {
			copied := record
			return &copied, nil
		}
	}
	return nil, ErrVerdictNotFound
}

// ListLatest 返回最近的台账记录，按时间倒序排列。
func (m *MemoryVerdictRepository) ListLatest(_ context.Context, limit int) ([]VerdictRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}

	results := make([]VerdictRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// Close 对内存仓库无需操作。
func (m *MemoryVerdictRepository) Close() error {
	return nil
}

func (m *MemoryVerdictRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取台账日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []VerdictRecord
	for scanner.Scan() {
		var record VerdictRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]VerdictRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析台账日志失败: %w", err)
	}

	if len(restored) > 512 {
		restored = restored[:512]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}

// SQLVerdictRepository 使用真实的 MySQL 数据库存储议会台账。
type SQLVerdictRepository struct {
	db *sql.DB
}

// NewSQLVerdictRepository 创建连接池并应用内嵌迁移。
func NewSQLVerdictRepository(ctx context.Context, cfg Config) (*SQLVerdictRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLVerdictRepository{db: db}, nil
}

// Save 将台账记录写入 MySQL。
func (s *SQLVerdictRepository) Save(ctx context.Context, record VerdictRecord) error {
	const stmt = `INSERT INTO verdicts
        (review_id, content_type, approved, approval_count, reject_count, approval_rate, risk_level, votes, chain_id, block_number, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.ReviewID,
		record.ContentType,
		record.Approved,
		record.ApprovalCount,
		record.RejectCount,
		record.ApprovalRate,
		record.RiskLevel,
		record.Votes,
		record.ChainID,
		record.BlockNumber,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入 MySQL 失败: %w", err)
	}
	return nil
}

// GetByReviewID 按工单 ID 查询台账记录。
func (s *SQLVerdictRepository) GetByReviewID(ctx context.Context, reviewID string) (*VerdictRecord, error) {
	const query = `SELECT review_id, content_type, approved, approval_count, reject_count, approval_rate, risk_level, votes, chain_id, block_number, created_at
        FROM verdicts WHERE review_id = ? ORDER BY id DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, reviewID)
	var record VerdictRecord
	if err := row.Scan(
		&record.ReviewID,
		&record.ContentType,
		&record.Approved,
		&record.ApprovalCount,
		&record.RejectCount,
		&record.ApprovalRate,
		&record.RiskLevel,
		&record.Votes,
		&record.ChainID,
		&record.BlockNumber,
		&record.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVerdictNotFound
		}
		return nil, fmt.Errorf("查询台账记录失败: %w", err)
	}
	return &record, nil
}

// ListLatest 查询最近的若干条台账记录。
func (s *SQLVerdictRepository) ListLatest(ctx context.Context, limit int) ([]VerdictRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT review_id, content_type, approved, approval_count, reject_count, approval_rate, risk_level, votes, chain_id, block_number, created_at
        FROM verdicts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询台账记录失败: %w", err)
	}
	defer rows.Close()

	var records []VerdictRecord
	for rows.Next() {
		var record VerdictRecord
		if err := rows.Scan(
			&record.ReviewID,
			&record.ContentType,
			&record.Approved,
			&record.ApprovalCount,
			&record.RejectCount,
			&record.ApprovalRate,
			&record.RiskLevel,
			&record.Votes,
			&record.ChainID,
			&record.BlockNumber,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("解析台账记录失败: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历台账记录失败: %w", err)
	}

	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLVerdictRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var (
	_ VerdictRepository = (*MemoryVerdictRepository)(nil)
	_ VerdictRepository = (*SQLVerdictRepository)(nil)
)
