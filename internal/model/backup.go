package model

import "time"

// BackupArtifact describes one full-database dump file on disk.
// ID is the filename without its extension and doubles as the restore
// handle; it never contains path separators.
type BackupArtifact struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
