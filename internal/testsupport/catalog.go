package testsupport

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	_ "modernc.org/sqlite"

	"digidup/internal/catalog"
	"digidup/internal/config"
	"digidup/internal/fingerprint"
)

// digiKam's own layout for the two tables digidup reads, trimmed to the
// columns that matter here plus a few that make inserts realistic.
const catalogSchema = `
CREATE TABLE Albums (
    id INTEGER PRIMARY KEY,
    albumRoot INTEGER NOT NULL DEFAULT 1,
    relativePath TEXT NOT NULL,
    date DATE,
    caption TEXT,
    collection TEXT,
    icon INTEGER,
    UNIQUE(albumRoot, relativePath)
);
CREATE TABLE Images (
    id INTEGER PRIMARY KEY,
    album INTEGER,
    name TEXT NOT NULL,
    status INTEGER NOT NULL DEFAULT 1,
    category INTEGER NOT NULL DEFAULT 1,
    modificationDate DATETIME,
    fileSize INTEGER,
    uniqueHash TEXT,
    manualOrder INTEGER,
    UNIQUE (album, name)
);`

// Catalog is a digiKam-shaped SQLite file for tests.
type Catalog struct {
	t         testing.TB
	db        *sql.DB
	Path      string
	AlbumRoot string
	albums    map[int64]string
}

// NewCatalog creates an empty catalog at albumRoot/digikam4.db.
func NewCatalog(t testing.TB, albumRoot string) *Catalog {
	t.Helper()
	return NewCatalogAt(t, albumRoot, filepath.Join(albumRoot, config.CatalogFileName))
}

// NewCatalogAt creates an empty catalog at path for images under albumRoot.
func NewCatalogAt(t testing.TB, albumRoot, path string) *Catalog {
	t.Helper()

	WriteBytes(t, path, nil)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open catalog fixture: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Exec(catalogSchema); err != nil {
		t.Fatalf("create catalog schema: %v", err)
	}
	return &Catalog{t: t, db: db, Path: path, AlbumRoot: albumRoot, albums: map[int64]string{}}
}

// AddAlbum inserts an album with a digiKam relative path such as "/2021/Trip".
func (c *Catalog) AddAlbum(relativePath string) int64 {
	c.t.Helper()

	res, err := c.db.Exec("INSERT INTO Albums (relativePath) VALUES (?)", relativePath)
	if err != nil {
		c.t.Fatalf("insert album %q: %v", relativePath, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		c.t.Fatalf("album id: %v", err)
	}
	c.albums[id] = relativePath
	return id
}

// AddImage inserts an image row without touching the filesystem. An albumID
// of 0 stores a NULL album, like digiKam does for removed albums.
func (c *Catalog) AddImage(albumID int64, name, hash string) int64 {
	c.t.Helper()

	var album any
	if albumID != 0 {
		album = albumID
	}
	res, err := c.db.Exec("INSERT INTO Images (album, name, uniqueHash) VALUES (?, ?, ?)", album, name, hash)
	if err != nil {
		c.t.Fatalf("insert image %q: %v", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		c.t.Fatalf("image id: %v", err)
	}
	return id
}

// AddUnhashedImage inserts an image row whose uniqueHash is NULL, as digiKam
// leaves it for files it has not scanned yet.
func (c *Catalog) AddUnhashedImage(albumID int64, name string) int64 {
	c.t.Helper()

	res, err := c.db.Exec("INSERT INTO Images (album, name, uniqueHash) VALUES (?, ?, NULL)", albumID, name)
	if err != nil {
		c.t.Fatalf("insert image %q: %v", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		c.t.Fatalf("image id: %v", err)
	}
	return id
}

// AddImageFile writes data into the album directory and inserts a row whose
// uniqueHash is the file's real fingerprint. It returns the id and file path.
func (c *Catalog) AddImageFile(albumID int64, name string, data []byte) (int64, string) {
	c.t.Helper()

	rel, ok := c.albums[albumID]
	if !ok {
		c.t.Fatalf("unknown album %d", albumID)
	}
	path := filepath.Join(c.AlbumRoot, filepath.FromSlash(strings.TrimPrefix(rel, "/")), name)
	WriteBytes(c.t, path, data)
	hash, err := fingerprint.Partial(afero.NewOsFs(), path)
	if err != nil {
		c.t.Fatalf("fingerprint %s: %v", path, err)
	}
	return c.AddImage(albumID, name, hash), path
}

// HasImage reports whether the image row still exists.
func (c *Catalog) HasImage(id int64) bool {
	c.t.Helper()

	var count int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM Images WHERE id = ?", id).Scan(&count); err != nil {
		c.t.Fatalf("count image %d: %v", id, err)
	}
	return count == 1
}

// ImageCount returns the number of rows in Images.
func (c *Catalog) ImageCount() int {
	c.t.Helper()

	var count int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM Images").Scan(&count); err != nil {
		c.t.Fatalf("count images: %v", err)
	}
	return count
}

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, path string, readOnly bool) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(context.Background(), catalog.Options{Path: path, ReadOnly: readOnly})
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
