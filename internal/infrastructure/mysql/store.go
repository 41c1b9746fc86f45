package mysql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/Masterminds/squirrel"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const errDuplicateEntry = 1062

// Store is the MySQL storage driver. Every repository shares one pool and
// one statement builder.
type Store struct {
	Database   *sql.DB
	SqlBuilder squirrel.StatementBuilderType
	log        logger.Logger
}

var _ domain.Store = (*Store)(nil)

func NewStore(db *sql.DB, log logger.Logger) *Store {
	return &Store{
		Database:   db,
		SqlBuilder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		log:        log,
	}
}

func (s *Store) Close() error {
	if s.Database != nil {
		return s.Database.Close()
	}
	return nil
}

// Migrate applies the embedded schema migrations. dsn is the
// go-sql-driver DSN the pool was opened with.
func Migrate(dsn string, log logger.Logger) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	migrations, err := migrate.NewWithSourceInstance("iofs", src, "mysql://"+dsn)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := migrations.Close(); srcErr != nil || dbErr != nil {
			log.Warn("Failed to close migrator", "source_error", srcErr, "database_error", dbErr)
		}
	}()

	if err := migrations.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("No change made by migration scripts")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("Migrations applied")
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysqldriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry
}
