package utils

import (
	"context"
	"database/sql"
	"fmt"

	"auction-storefront/internal/config"
	"auction-storefront/pkg/logger"

	_ "github.com/go-sql-driver/mysql"
)

func InitializeMysql(ctx context.Context, cfg config.MySQLConfig, log logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		log.Error("Failed to connect to MySQL", "error", err)
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Test MySQL connection
	if err := db.PingContext(ctx); err != nil {
		log.Error("Failed to ping MySQL", "error", err)
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	log.Info("Connected to MySQL")
	return db, nil
}
