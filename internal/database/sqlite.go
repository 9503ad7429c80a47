package database

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/x402-labs/inference-gateway/internal/utils"
)

// SQLiteManager handles all database operations
type SQLiteManager struct {
	dir    string
	cm     *utils.ConfigManager
	db     *sql.DB
	logger *utils.LogsManager

	// Specialized managers
	Refunds *RefundJournal
}

// NewSQLiteManager opens the gateway database and initializes all tables
func NewSQLiteManager(cm *utils.ConfigManager, logger *utils.LogsManager) (*SQLiteManager, error) {
	paths := utils.GetAppPaths("")
	sqlm := &SQLiteManager{
		dir:    paths.DataDir,
		cm:     cm,
		logger: logger,
	}

	db, err := sqlm.createConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %v", err)
	}
	sqlm.db = db

	sqlm.Refunds = NewRefundJournal(db, logger)
	if err := sqlm.Refunds.InitTable(); err != nil {
		return nil, fmt.Errorf("failed to init refund_journal table: %w", err)
	}

	return sqlm, nil
}

func (sqlm *SQLiteManager) createConnection() (*sql.DB, error) {
	dbName := sqlm.cm.GetConfigWithDefault("database_file", "gateway.db")
	dbPath := filepath.Join(sqlm.dir, dbName)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Single writer; WAL keeps readers unblocked during journal writes
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set pragmas: %v", err)
	}

	return db, nil
}

// DB exposes the underlying handle for tests
func (sqlm *SQLiteManager) DB() *sql.DB {
	return sqlm.db
}

func (sqlm *SQLiteManager) Close() error {
	if sqlm.db != nil {
		return sqlm.db.Close()
	}
	return nil
}
