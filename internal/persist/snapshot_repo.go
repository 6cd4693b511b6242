package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// SnapshotRepo stores world snapshots in Postgres, one row per name.
type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Save inserts or replaces the snapshot called name.
func (r *SnapshotRepo) Save(ctx context.Context, name string, data []byte) (SnapshotInfo, error) {
	if err := validateName(name); err != nil {
		return SnapshotInfo{}, err
	}
	si := info(name, data, time.Time{})
	sum := Checksum(data)
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO world_snapshots (name, version, size, checksum, data, saved_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (name) DO UPDATE SET
		   version = EXCLUDED.version, size = EXCLUDED.size, checksum = EXCLUDED.checksum,
		   data = EXCLUDED.data, saved_at = EXCLUDED.saved_at
		 RETURNING saved_at`,
		name, int16(si.Version), si.Size, sum[:], data,
	).Scan(&si.SavedAt)
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("save snapshot %s: %w", name, err)
	}
	r.db.log.Debug("snapshot saved", zap.String("name", name), zap.Int("bytes", si.Size))
	return si, nil
}

// Load returns the data of the snapshot called name after verifying its
// checksum.
func (r *SnapshotRepo) Load(ctx context.Context, name string) ([]byte, error) {
	var data, sum []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT data, checksum FROM world_snapshots WHERE name = $1`, name,
	).Scan(&data, &sum)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load snapshot %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", name, err)
	}
	if want := Checksum(data); !bytes.Equal(sum, want[:]) {
		return nil, fmt.Errorf("load snapshot %s: %w", name, ErrChecksumMismatch)
	}
	return data, nil
}

// List returns all stored snapshots ordered by name, without their data.
func (r *SnapshotRepo) List(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT name, version, size, checksum, saved_at FROM world_snapshots ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var result []SnapshotInfo
	for rows.Next() {
		var si SnapshotInfo
		var version int16
		var sum []byte
		if err := rows.Scan(&si.Name, &version, &si.Size, &sum, &si.SavedAt); err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		si.Version = uint8(version)
		si.Checksum = fmt.Sprintf("%x", sum)
		result = append(result, si)
	}
	return result, rows.Err()
}

func (r *SnapshotRepo) Delete(ctx context.Context, name string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM world_snapshots WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete snapshot %s: %w", name, ErrNotFound)
	}
	return nil
}
