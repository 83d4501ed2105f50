package main

import (
	"github.com/raine/listing-draft-bot/config"
	"github.com/raine/listing-draft-bot/internal/storage"
)

// historyScope separates CLI drafts from bot users' drafts.
const historyScope = "cli"

func openHistory(cfg config.Config) (*storage.SQLiteStore, *storage.History, error) {
	path := dbPath
	if path == "" {
		path = cfg.DBPath
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	return store, storage.NewHistory(store, historyScope+":history"), nil
}
