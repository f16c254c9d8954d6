package persistence

import (
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	_ "github.com/AkatukiSora/vrpoker-advisor/internal/persistence/migrations"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	migrationSetupOnce sync.Once
	migrationSetupErr  error
)

func setupGoose() error {
	migrationSetupOnce.Do(func() {
		goose.SetBaseFS(migrationFS)
		migrationSetupErr = goose.SetDialect("sqlite3")
	})
	if migrationSetupErr != nil {
		return fmt.Errorf("setup goose: %w", migrationSetupErr)
	}
	return nil
}

func runMigrations(db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
