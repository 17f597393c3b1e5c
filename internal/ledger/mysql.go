package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/jakesower/gtfs-import/contracts"
)

// importRun is the gorm model of RunRecord.
type importRun struct {
	ID         string `gorm:"primaryKey;size:64"`
	Archive    string `gorm:"size:1024"`
	State      string `gorm:"size:16"`
	Error      string `gorm:"type:text"`
	StartedAt  time.Time
	FinishedAt *time.Time
}

// chainResult is the gorm model of ChainRecord.
type chainResult struct {
	RunID       string `gorm:"primaryKey;size:64;index:idx_chain_results_state,priority:1"`
	FileName    string `gorm:"primaryKey;size:128"`
	Name        string `gorm:"size:128"`
	Shape       string `gorm:"size:16"`
	State       string `gorm:"size:16;index:idx_chain_results_state,priority:2"`
	FailedStep  string `gorm:"size:16"`
	ErrorCode   string `gorm:"size:32"`
	Error       string `gorm:"type:text"`
	PublishedID string `gorm:"size:64"`
	RecordedAt  time.Time
}

// MySQLStore is a Store backed by a shared MySQL database.
type MySQLStore struct {
	db *gorm.DB
}

// OpenMySQL connects to dsn and migrates the ledger tables.
func OpenMySQL(dsn string) (*MySQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql ledger dsn is empty: %w", contracts.ErrInvalidInput)
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening mysql ledger: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	if err := db.AutoMigrate(&importRun{}, &chainResult{}); err != nil {
		return nil, fmt.Errorf("migrating mysql ledger: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) BeginRun(ctx context.Context, run RunRecord) error {
	row := importRun{
		ID:        string(run.ID),
		Archive:   run.Archive,
		State:     run.State.String(),
		StartedAt: run.StartedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

func (s *MySQLStore) RecordChain(ctx context.Context, rec ChainRecord) error {
	row := chainResult{
		RunID:       string(rec.RunID),
		FileName:    rec.FileName,
		Name:        rec.Name,
		Shape:       string(rec.Shape),
		State:       rec.State.String(),
		FailedStep:  string(rec.FailedStep),
		ErrorCode:   string(rec.ErrorCode),
		Error:       rec.Error,
		PublishedID: rec.PublishedID,
		RecordedAt:  rec.RecordedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("recording chain %s of run %s: %w", rec.FileName, rec.RunID, err)
	}
	return nil
}

func (s *MySQLStore) FinishRun(ctx context.Context, id contracts.RunID, state contracts.RunState, errMsg string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&importRun{}).Where("id = ?", string(id)).
		Updates(map[string]any{"state": state.String(), "error": errMsg, "finished_at": &now})
	if res.Error != nil {
		return fmt.Errorf("finishing run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

func (s *MySQLStore) GetRun(ctx context.Context, id contracts.RunID) (RunRecord, error) {
	var row importRun
	err := s.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RunRecord{}, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("loading run %s: %w", id, err)
	}
	rec := RunRecord{
		ID:        contracts.RunID(row.ID),
		Archive:   row.Archive,
		State:     parseRunState(row.State),
		Error:     row.Error,
		StartedAt: row.StartedAt,
	}
	if row.FinishedAt != nil {
		rec.FinishedAt = *row.FinishedAt
	}
	return rec, nil
}

func (s *MySQLStore) ListChains(ctx context.Context, id contracts.RunID) ([]ChainRecord, error) {
	var rows []chainResult
	if err := s.db.WithContext(ctx).Where("run_id = ?", string(id)).Order("file_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing chains of run %s: %w", id, err)
	}
	out := make([]ChainRecord, len(rows))
	for i, r := range rows {
		out[i] = ChainRecord{
			RunID:       contracts.RunID(r.RunID),
			FileName:    r.FileName,
			Name:        r.Name,
			Shape:       contracts.ChainShape(r.Shape),
			State:       parseTaskState(r.State),
			FailedStep:  contracts.StepName(r.FailedStep),
			ErrorCode:   contracts.ErrorCode(r.ErrorCode),
			Error:       r.Error,
			PublishedID: r.PublishedID,
			RecordedAt:  r.RecordedAt,
		}
	}
	return out, nil
}

func (s *MySQLStore) FailedFiles(ctx context.Context, id contracts.RunID) ([]string, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}
	var files []string
	err := s.db.WithContext(ctx).Model(&chainResult{}).
		Where("run_id = ? AND state = ?", string(id), contracts.TaskFailed.String()).
		Order("file_name").Pluck("file_name", &files).Error
	if err != nil {
		return nil, fmt.Errorf("listing failed files of run %s: %w", id, err)
	}
	return files, nil
}

func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
