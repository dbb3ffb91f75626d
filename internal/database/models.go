package database

import "time"

// HistoryMessage is one transcript entry of a container's history record.
// Rows are ordered by ID within a container.
type HistoryMessage struct {
	ID            uint   `gorm:"primaryKey"`
	ContainerName string `gorm:"index;not null"`
	MessageID     string `gorm:"uniqueIndex;not null"`
	Role          string `gorm:"not null"`
	Content       string `gorm:"type:text"`
	ExitCode      *int
	Timestamp     time.Time `gorm:"not null"`
}
