// Package backup creates, lists and restores database snapshots. Postgres
// snapshots shell out to pg_dump/psql; the sqlite driver copies the database
// file. Artifacts live in a flat directory and are addressed by ID only, so
// callers can never reach outside it.
package backup

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agency-crm/internal/config"
	"github.com/sells-group/agency-crm/internal/model"
)

var (
	// ErrArtifactNotFound is returned when the named backup does not exist.
	ErrArtifactNotFound = eris.New("backup: artifact not found")
	// ErrInvalidID is returned for backup IDs that are not plain names.
	ErrInvalidID = eris.New("backup: invalid artifact id")
)

// idPattern restricts artifact IDs to plain names. IDs come from API callers
// and are joined onto the backup directory, so path separators and dots are
// rejected outright.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const filePrefix = "crm_"

// Service manages backup artifacts for one database.
type Service struct {
	cfg    config.BackupConfig
	driver string
	dbURL  string
	log    *zap.Logger
}

// NewService creates a backup service for the configured store.
func NewService(cfg config.BackupConfig, store config.StoreConfig) *Service {
	return &Service{
		cfg:    cfg,
		driver: store.Driver,
		dbURL:  store.DatabaseURL,
		log:    zap.L().With(zap.String("component", "backup")),
	}
}

func (s *Service) ext() string {
	if s.driver == "sqlite" {
		return ".db"
	}
	return ".sql"
}

// Create writes a new snapshot and returns its artifact record.
func (s *Service) Create(ctx context.Context) (*model.BackupArtifact, error) {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "backup: create directory")
	}

	now := time.Now().UTC()
	id := filePrefix + now.Format("20060102_150405")
	path := filepath.Join(s.cfg.Dir, id+s.ext())

	var err error
	if s.driver == "sqlite" {
		err = copyFile(s.dbURL, path)
	} else {
		err = s.pgDump(ctx, path)
	}
	if err != nil {
		// A failed dump can leave a partial file behind.
		os.Remove(path)
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrap(err, "backup: stat artifact")
	}

	s.log.Info("backup created", zap.String("id", id), zap.Int64("size", info.Size()))
	return &model.BackupArtifact{
		ID:        id,
		Filename:  filepath.Base(path),
		Size:      info.Size(),
		CreatedAt: now,
	}, nil
}

// pgDump snapshots the database as SQL. The dump carries --clean --if-exists
// so replaying it through psql drops and recreates the schema, which is what
// makes Restore a full replacement rather than a merge.
func (s *Service) pgDump(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DumpTimeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.PgDumpPath,
		"--dbname", s.dbURL,
		"--file", path,
		"--clean", "--if-exists",
		"--no-owner", "--no-privileges",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return eris.Wrapf(err, "backup: pg_dump failed: %s", stderr.String())
	}
	return nil
}

// List returns the stored artifacts, newest first. A missing backup
// directory means no backups yet, not an error.
func (s *Service) List() ([]model.BackupArtifact, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.BackupArtifact{}, nil
		}
		return nil, eris.Wrap(err, "backup: read directory")
	}

	artifacts := make([]model.BackupArtifact, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, s.ext()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, model.BackupArtifact{
			ID:        strings.TrimSuffix(name, s.ext()),
			Filename:  name,
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// Restore replaces the current database with the named snapshot. The caller
// is responsible for holding the import/restore gate; this method only does
// the replacement.
func (s *Service) Restore(ctx context.Context, id string) error {
	if !idPattern.MatchString(id) {
		return eris.Wrapf(ErrInvalidID, "%q", id)
	}

	path := filepath.Join(s.cfg.Dir, id+s.ext())
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return eris.Wrapf(ErrArtifactNotFound, "%q", id)
		}
		return eris.Wrap(err, "backup: stat artifact")
	}

	if s.driver == "sqlite" {
		if err := copyFile(path, s.dbURL); err != nil {
			return err
		}
	} else if err := s.psqlRestore(ctx, path); err != nil {
		return err
	}

	s.log.Info("backup restored", zap.String("id", id))
	return nil
}

func (s *Service) psqlRestore(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RestoreTimeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.PsqlPath,
		"--dbname", s.dbURL,
		"--file", path,
		"--single-transaction",
		"-v", "ON_ERROR_STOP=1",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return eris.Wrapf(err, "backup: psql restore failed: %s", stderr.String())
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "backup: open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrapf(err, "backup: create %s", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return eris.Wrapf(err, "backup: copy to %s", dst)
	}
	return out.Close()
}
