package database

import (
	"path/filepath"
	"testing"
	"time"
)

func TestOpenMemory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(db)

	code := 0
	msg := HistoryMessage{
		ContainerName: "demo",
		MessageID:     "m1",
		Role:          "assistant",
		Content:       "hi",
		ExitCode:      &code,
		Timestamp:     time.Now(),
	}
	if err := db.Create(&msg).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	var loaded HistoryMessage
	if err := db.Where("message_id = ?", "m1").First(&loaded).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ExitCode == nil || *loaded.ExitCode != 0 || loaded.Content != "hi" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "boxterm.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(db)

	if !db.Migrator().HasTable(&HistoryMessage{}) {
		t.Fatal("history table not migrated")
	}
}
