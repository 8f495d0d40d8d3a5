package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	cperrors "github.com/saastenant/orchestrator/internal/errors"
)

// FileMetadata mirrors the file_metadata row created at the start of
// an upload, before the object itself has been written.
type FileMetadata struct {
	FileID    string
	TenantID  string
	OwnerID   string
	Name      string
	SizeBytes int64
	Status    string
	CreatedAt time.Time
}

// CreateFileMetadata inserts the pending row an upload workflow anchors
// itself to before any object-store write.
func (s *Store) CreateFileMetadata(ctx context.Context, m FileMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_metadata (file_id, tenant_id, owner_id, name, size_bytes, storage_key, status, created_at)
		VALUES ($1, $2, $3, $4, $5, '', $6, $7)`,
		m.FileID, m.TenantID, m.OwnerID, m.Name, m.SizeBytes, m.Status, m.CreatedAt)
	if err != nil {
		return cperrors.NewDatabase("create file metadata failed", err)
	}
	return nil
}

// MarkFileAvailable flips a file_metadata row to "available" once the
// object has been durably written, recording its storage key and final
// byte size.
func (s *Store) MarkFileAvailable(ctx context.Context, fileID, storageKey string, sizeBytes int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE file_metadata SET status = 'available', storage_key = $2, size_bytes = $3 WHERE file_id = $1`,
		fileID, storageKey, sizeBytes)
	if err != nil {
		return cperrors.NewDatabase("mark file available failed", err)
	}
	return requireRowsAffected(res, "file", fileID)
}

// MarkFileCancelled flips a file_metadata row to "cancelled" after an
// upload was cancelled before finalize committed.
func (s *Store) MarkFileCancelled(ctx context.Context, fileID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE file_metadata SET status = 'cancelled' WHERE file_id = $1`, fileID)
	if err != nil {
		return cperrors.NewDatabase("mark file cancelled failed", err)
	}
	return requireRowsAffected(res, "file", fileID)
}

// fileMetadataRow is the scan target for GetFileMetadata.
type fileMetadataRow struct {
	FileID     string    `db:"file_id"`
	TenantID   string    `db:"tenant_id"`
	OwnerID    string    `db:"owner_id"`
	Name       string    `db:"name"`
	SizeBytes  int64     `db:"size_bytes"`
	StorageKey string    `db:"storage_key"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
}

// GetFileMetadata reads one file_metadata row by file id.
func (s *Store) GetFileMetadata(ctx context.Context, fileID string) (FileMetadata, error) {
	var row fileMetadataRow
	err := s.db.GetContext(ctx, &row, `
		SELECT file_id, tenant_id, owner_id, name, size_bytes, storage_key, status, created_at
		FROM file_metadata WHERE file_id = $1`, fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return FileMetadata{}, cperrors.NewNotFound("file " + fileID)
	}
	if err != nil {
		return FileMetadata{}, cperrors.NewDatabase("get file metadata failed", err)
	}
	return FileMetadata{
		FileID: row.FileID, TenantID: row.TenantID, OwnerID: row.OwnerID,
		Name: row.Name, SizeBytes: row.SizeBytes, Status: row.Status, CreatedAt: row.CreatedAt,
	}, nil
}

func requireRowsAffected(res interface{ RowsAffected() (int64, error) }, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return cperrors.NewDatabase("rows affected check failed", err)
	}
	if n == 0 {
		return cperrors.NewNotFound(resource + " " + id)
	}
	return nil
}
