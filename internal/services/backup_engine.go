package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/orvale/backend/internal/config"
	"github.com/orvale/backend/internal/database"
	"gorm.io/gorm"
)

// SnapshotEngine produces and restores consistent snapshots using the
// database engine's own backup primitive.
type SnapshotEngine interface {
	Name() string
	Snapshot(ctx context.Context, dest string) error
	Restore(ctx context.Context, src string) error
}

// NewSnapshotEngine returns the engine matching the configured driver
func NewSnapshotEngine(db *gorm.DB, cfg *config.Config) SnapshotEngine {
	if cfg.DBDriver == config.DriverPostgres {
		return &PgDumpEngine{cfg: cfg}
	}
	return &SQLiteEngine{db: db, path: cfg.DatabaseFile()}
}

// SQLiteEngine snapshots with VACUUM INTO and restores by atomically swapping
// the database file.
type SQLiteEngine struct {
	db   *gorm.DB
	path string
}

// NewSQLiteEngine creates an engine for the live database file at path
func NewSQLiteEngine(db *gorm.DB, path string) *SQLiteEngine {
	return &SQLiteEngine{db: db, path: path}
}

func (e *SQLiteEngine) Name() string { return "sqlite" }

// Snapshot writes a transactionally consistent copy of the database to dest.
// dest must not exist.
func (e *SQLiteEngine) Snapshot(ctx context.Context, dest string) error {
	return e.db.WithContext(ctx).Exec("VACUUM INTO ?", dest).Error
}

// Restore replaces the live database file with src. The copy is written next
// to the live file and renamed over it, so a failure never leaves a partially
// written database in place.
func (e *SQLiteEngine) Restore(ctx context.Context, src string) error {
	tmp := filepath.Join(filepath.Dir(e.path), ".orvale_restore_"+uuid.NewString()+".db")
	if err := copyFile(src, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("stage restore copy: %w", err)
	}

	sqlDB, err := e.db.DB()
	if err != nil {
		os.Remove(tmp)
		return err
	}

	// Holding the pool's only connection keeps other writers out while the
	// file is swapped.
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("acquire connection: %w", err)
	}
	if err := os.Rename(tmp, e.path); err != nil {
		conn.Close()
		os.Remove(tmp)
		return fmt.Errorf("swap database file: %w", err)
	}
	conn.Close()

	return database.RecyclePool(e.db)
}

// PgDumpEngine shells out to pg_dump / pg_restore using custom format
type PgDumpEngine struct {
	cfg *config.Config
}

func (e *PgDumpEngine) Name() string { return "pg_dump" }

func (e *PgDumpEngine) env() []string {
	return append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", e.cfg.DBPassword))
}

// Snapshot runs pg_dump with custom format (compressed, binary)
func (e *PgDumpEngine) Snapshot(ctx context.Context, dest string) error {
	cmd := exec.CommandContext(ctx, "pg_dump",
		"-h", e.cfg.DBHost,
		"-p", strconv.Itoa(e.cfg.DBPort),
		"-U", e.cfg.DBUser,
		"-d", e.cfg.DBName,
		"-Fc",
		"-f", dest,
		"--no-owner",
		"--no-acl",
	)
	cmd.Env = e.env()

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %s", err.Error(), string(output))
	}
	return nil
}

// Restore runs pg_restore in a single transaction so a failure leaves the
// database as it was
func (e *PgDumpEngine) Restore(ctx context.Context, src string) error {
	cmd := exec.CommandContext(ctx, "pg_restore",
		"-h", e.cfg.DBHost,
		"-p", strconv.Itoa(e.cfg.DBPort),
		"-U", e.cfg.DBUser,
		"-d", e.cfg.DBName,
		"--clean",
		"--if-exists",
		"--no-owner",
		"--no-acl",
		"--single-transaction",
		src,
	)
	cmd.Env = e.env()

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %s", err.Error(), string(output))
	}
	return nil
}

// copyFile copies src to a new file at dest and syncs it
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
