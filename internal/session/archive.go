package session

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mindpattern/voicegate/types"
)

// transcriptRow is the archived form of one transcript message.
type transcriptRow struct {
	ID         uint   `gorm:"primaryKey"`
	SessionID  string `gorm:"index;size:128"`
	Role       string `gorm:"size:16"`
	Content    string
	Name       string `gorm:"size:64"`
	ToolCallID string `gorm:"size:64"`
	CreatedAt  time.Time
}

func (transcriptRow) TableName() string { return "transcripts" }

// ArchiveStore persists transcripts durably in SQLite. Unlike the cache
// stores it never evicts; it is meant for offline transcript review.
type ArchiveStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewArchiveStore opens (and migrates) the SQLite archive at path.
func NewArchiveStore(path string, logger *zap.Logger) (*ArchiveStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open transcript archive: %w", err)
	}
	if err := db.AutoMigrate(&transcriptRow{}); err != nil {
		return nil, fmt.Errorf("migrate transcript archive: %w", err)
	}

	logger.Info("transcript archive opened", zap.String("path", path))
	return &ArchiveStore{
		db:     db,
		logger: logger.With(zap.String("component", "session_archive")),
	}, nil
}

func (s *ArchiveStore) Append(ctx context.Context, sessionID string, msgs ...types.Message) error {
	if sessionID == "" {
		return types.NewError(types.ErrInvalidRequest, "empty session id")
	}
	if len(msgs) == 0 {
		return nil
	}

	rows := make([]transcriptRow, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, transcriptRow{
			SessionID:  sessionID,
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("archive transcript messages: %w", err)
	}
	return nil
}

func (s *ArchiveStore) History(ctx context.Context, sessionID string) ([]types.Message, error) {
	var rows []transcriptRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read archived transcript: %w", err)
	}

	out := make([]types.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.Message{
			Role:       types.Role(r.Role),
			Content:    r.Content,
			Name:       r.Name,
			ToolCallID: r.ToolCallID,
			Timestamp:  r.CreatedAt,
		})
	}
	return out, nil
}

func (s *ArchiveStore) Clear(ctx context.Context, sessionID string) error {
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&transcriptRow{}).Error
	if err != nil {
		return fmt.Errorf("clear archived transcript: %w", err)
	}
	return nil
}

func (s *ArchiveStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Tee fans writes out to a primary store and the archive. Reads come
// from the primary.
type Tee struct {
	Primary Store
	Archive Store
	Logger  *zap.Logger
}

func (t *Tee) Append(ctx context.Context, sessionID string, msgs ...types.Message) error {
	if err := t.Primary.Append(ctx, sessionID, msgs...); err != nil {
		return err
	}
	if t.Archive != nil {
		if err := t.Archive.Append(ctx, sessionID, msgs...); err != nil && t.Logger != nil {
			// Archive failures never fail the live path.
			t.Logger.Warn("transcript archive append failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
	return nil
}

func (t *Tee) History(ctx context.Context, sessionID string) ([]types.Message, error) {
	return t.Primary.History(ctx, sessionID)
}

func (t *Tee) Clear(ctx context.Context, sessionID string) error {
	if t.Archive != nil {
		_ = t.Archive.Clear(ctx, sessionID)
	}
	return t.Primary.Clear(ctx, sessionID)
}

func (t *Tee) Close() error {
	if t.Archive != nil {
		_ = t.Archive.Close()
	}
	return t.Primary.Close()
}
