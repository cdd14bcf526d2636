package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// deleteChunkSize keeps IN lists well below SQLite's host parameter limit.
const deleteChunkSize = 500

const duplicateGroupsQuery = `
WITH hashes AS (
    SELECT uniqueHash, COUNT(*) AS count
    FROM Images
    WHERE album IS NOT NULL AND uniqueHash IS NOT NULL AND uniqueHash != ''
    GROUP BY uniqueHash
)
SELECT uniqueHash, count FROM hashes WHERE count > 1 ORDER BY count DESC, uniqueHash ASC`

// Keeper order: shortest name first, then alphabetical. id only breaks
// ties between identical names in different albums.
const imagesByHashQuery = `
SELECT Images.id, Images.uniqueHash, Images.name, Images.album, Albums.relativePath
FROM Images JOIN Albums ON Images.album = Albums.id
WHERE Images.uniqueHash = ?
ORDER BY LENGTH(Images.name) ASC, Images.name ASC, Images.id ASC`

// FindDuplicateGroups returns every fingerprint shared by more than one image
// that belongs to an album, largest groups first.
func (s *Store) FindDuplicateGroups(ctx context.Context) ([]DuplicateGroup, error) {
	var groups []DuplicateGroup
	err := retryOnBusy(ctx, func() error {
		groups = groups[:0]
		rows, err := s.db.QueryContext(ctx, duplicateGroupsQuery)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var g DuplicateGroup
			if err := rows.Scan(&g.Fingerprint, &g.Count); err != nil {
				return err
			}
			groups = append(groups, g)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("find duplicate groups: %w", err)
	}
	return groups, nil
}

// ListGroupMembers returns all images carrying fingerprint in keeper order:
// the first element is the image to keep.
func (s *Store) ListGroupMembers(ctx context.Context, fingerprint string) ([]Image, error) {
	images, err := s.imagesByHash(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", fingerprint, err)
	}
	return images, nil
}

// LookupByFingerprint returns the images matching a fingerprint computed from
// a file outside the album tree.
func (s *Store) LookupByFingerprint(ctx context.Context, fingerprint string) ([]Image, error) {
	images, err := s.imagesByHash(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("lookup fingerprint %s: %w", fingerprint, err)
	}
	return images, nil
}

func (s *Store) imagesByHash(ctx context.Context, fingerprint string) ([]Image, error) {
	var images []Image
	err := retryOnBusy(ctx, func() error {
		images = images[:0]
		rows, err := s.db.QueryContext(ctx, imagesByHashQuery, fingerprint)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				img     Image
				relPath sql.NullString
			)
			if err := rows.Scan(&img.ID, &img.Fingerprint, &img.Name, &img.AlbumID, &relPath); err != nil {
				return err
			}
			img.RelativePath = relPath.String
			images = append(images, img)
		}
		return rows.Err()
	})
	return images, err
}

// DeleteImages removes the given image rows in one transaction and returns
// the number of rows deleted.
func (s *Store) DeleteImages(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if s.readOnly {
		return 0, fmt.Errorf("delete %d images: %w", len(ids), ErrReadOnly)
	}

	var deleted int64
	err := retryOnBusy(ctx, func() error {
		deleted = 0
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for start := 0; start < len(ids); start += deleteChunkSize {
			chunk := ids[start:min(start+deleteChunkSize, len(ids))]
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
			args := make([]any, len(chunk))
			for i, id := range chunk {
				args[i] = id
			}
			res, err := tx.ExecContext(ctx, "DELETE FROM Images WHERE id IN ("+placeholders+")", args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			deleted += n
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, fmt.Errorf("delete %d images: %w", len(ids), err)
	}
	return deleted, nil
}

// Stats counts album images, albums, duplicate groups and redundant copies.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := retryOnBusy(ctx, func() error {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM Images WHERE album IS NOT NULL").Scan(&stats.Images); err != nil {
			return err
		}
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM Albums").Scan(&stats.Albums); err != nil {
			return err
		}
		return s.db.QueryRowContext(ctx,
			"WITH dupes AS ("+duplicateGroupsQuery+") SELECT COUNT(*), COALESCE(SUM(count - 1), 0) FROM dupes",
		).Scan(&stats.DuplicateGroups, &stats.Redundant)
	})
	if err != nil {
		return Stats{}, fmt.Errorf("catalog stats: %w", err)
	}
	return stats, nil
}
