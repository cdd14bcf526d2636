package catalog

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Image is a row of the Images table joined with its album.
type Image struct {
	ID           int64
	Fingerprint  string
	Name         string
	AlbumID      int64
	RelativePath string
}

// DuplicateGroup is a fingerprint shared by more than one image.
type DuplicateGroup struct {
	Fingerprint string
	Count       int
}

// Stats summarizes the catalog contents relevant to duplicate handling.
type Stats struct {
	Images          int64
	Albums          int64
	DuplicateGroups int64
	// Redundant counts images that would be moved if every group kept one member.
	Redundant int64
}

// Path returns the location of the image under root, mirroring the album's
// relative path. It fails when the stored path would escape root.
func (img Image) Path(root string) (string, error) {
	rel := strings.TrimLeft(filepath.FromSlash(img.RelativePath), string(filepath.Separator))
	name := filepath.FromSlash(img.Name)
	if name == "" || strings.ContainsRune(name, filepath.Separator) {
		return "", fmt.Errorf("image %d: invalid file name %q", img.ID, img.Name)
	}
	full := filepath.Join(root, rel, name)
	check, err := filepath.Rel(root, full)
	if err != nil || check == ".." || strings.HasPrefix(check, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("image %d: album path %q escapes %s", img.ID, img.RelativePath, root)
	}
	return full, nil
}
