package services

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/orvale/backend/internal/settings"
	"github.com/rs/zerolog"
)

// OffsiteStore receives a copy of every backup when off-site copies are enabled
type OffsiteStore interface {
	Upload(ctx context.Context, cfg settings.FTPSettings, localPath, filename string) error
	Prune(ctx context.Context, cfg settings.FTPSettings, cutoff time.Time) (int, error)
}

// FTPStore copies backups to an FTP server
type FTPStore struct {
	log zerolog.Logger
}

// NewFTPStore creates an FTP off-site store
func NewFTPStore(log zerolog.Logger) *FTPStore {
	return &FTPStore{log: log.With().Str("component", "backup_ftp").Logger()}
}

func (f *FTPStore) connect(ctx context.Context, cfg settings.FTPSettings) (*ftp.ServerConn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("FTP connection failed: %w", err)
	}

	if err := conn.Login(cfg.Username, cfg.Password); err != nil {
		conn.Quit()
		return nil, fmt.Errorf("FTP login failed: %w", err)
	}

	if cfg.Path != "" && cfg.Path != "/" {
		if err := conn.ChangeDir(cfg.Path); err != nil {
			conn.MakeDir(cfg.Path)
			if err := conn.ChangeDir(cfg.Path); err != nil {
				conn.Quit()
				return nil, fmt.Errorf("FTP directory change failed: %w", err)
			}
		}
	}
	return conn, nil
}

// Upload stores localPath on the server as filename
func (f *FTPStore) Upload(ctx context.Context, cfg settings.FTPSettings, localPath, filename string) error {
	conn, err := f.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Quit()

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer file.Close()

	if err := conn.Stor(filename, file); err != nil {
		return fmt.Errorf("FTP upload failed: %w", err)
	}

	f.log.Info().Str("file", filename).Str("host", cfg.Host).Msg("uploaded backup to FTP")
	return nil
}

// Prune deletes remote backups last modified before cutoff
func (f *FTPStore) Prune(ctx context.Context, cfg settings.FTPSettings, cutoff time.Time) (int, error) {
	conn, err := f.connect(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer conn.Quit()

	entries, err := conn.List("")
	if err != nil {
		return 0, fmt.Errorf("FTP list failed: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile || !entry.Time.Before(cutoff) {
			continue
		}
		if !backupNamePattern.MatchString(path.Base(entry.Name)) {
			continue
		}
		if err := conn.Delete(entry.Name); err != nil {
			f.log.Warn().Err(err).Str("file", entry.Name).Msg("failed to delete old FTP backup")
			continue
		}
		deleted++
		f.log.Info().Str("file", entry.Name).Msg("deleted old FTP backup")
	}
	return deleted, nil
}
