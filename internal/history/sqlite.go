package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gluk-w/boxterm/internal/database"
	"github.com/gluk-w/boxterm/internal/naming"
)

// sqlStore keeps one row per message.
type sqlStore struct {
	db  *gorm.DB
	now func() time.Time
}

func newSQLStore(db *gorm.DB, now func() time.Time) *sqlStore {
	return &sqlStore{db: db, now: now}
}

func (s *sqlStore) Load(ctx context.Context, name string) (Record, error) {
	if !naming.Valid(name) {
		return Record{}, ErrInvalidName
	}

	var rows []database.HistoryMessage
	if err := s.db.WithContext(ctx).Where("container_name = ?", name).Order("id asc").Find(&rows).Error; err != nil {
		return Record{}, fmt.Errorf("load history: %w", err)
	}

	rec := emptyRecord(name)
	for _, row := range rows {
		rec.Messages = append(rec.Messages, Message{
			ID:        row.MessageID,
			Role:      Role(row.Role),
			Content:   row.Content,
			Timestamp: row.Timestamp.UTC(),
			ExitCode:  row.ExitCode,
		})
	}
	finish(&rec)
	return rec, nil
}

func (s *sqlStore) Append(ctx context.Context, name string, role Role, content string, extra Extra) (Message, error) {
	if !naming.Valid(name) {
		return Message{}, ErrInvalidName
	}
	msg := newMessage(role, content, extra, s.now())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := database.HistoryMessage{
			ContainerName: name,
			MessageID:     msg.ID,
			Role:          string(msg.Role),
			Content:       msg.Content,
			ExitCode:      msg.ExitCode,
			Timestamp:     msg.Timestamp,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		// Oldest row still inside the cap; everything before it goes.
		var cutoff database.HistoryMessage
		err := tx.Where("container_name = ?", name).
			Order("id desc").
			Offset(MaxMessages - 1).
			Limit(1).
			Take(&cutoff).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Where("container_name = ? AND id < ?", name, cutoff.ID).Delete(&database.HistoryMessage{}).Error
	})
	if err != nil {
		return Message{}, fmt.Errorf("append history: %w", err)
	}
	return msg, nil
}

func (s *sqlStore) Remove(ctx context.Context, name string) error {
	if !naming.Valid(name) {
		return ErrInvalidName
	}
	if err := s.db.WithContext(ctx).Where("container_name = ?", name).Delete(&database.HistoryMessage{}).Error; err != nil {
		return fmt.Errorf("remove history: %w", err)
	}
	return nil
}

func (s *sqlStore) ListNames(ctx context.Context) ([]string, error) {
	var all []string
	if err := s.db.WithContext(ctx).Model(&database.HistoryMessage{}).
		Distinct("container_name").
		Order("container_name").
		Pluck("container_name", &all).Error; err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	names := all[:0]
	for _, n := range all {
		if naming.Valid(n) {
			names = append(names, n)
		}
	}
	return names, nil
}

func (s *sqlStore) Close() error {
	return database.Close(s.db)
}
