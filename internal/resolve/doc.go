// Package resolve keeps one image of every duplicate group in the catalog and
// moves the others out of the album tree.
//
// Each non-keeper is moved to the target root under the same album-relative
// path; its catalog row is queued and deleted in batches once the move has
// succeeded. A failed move leaves both the file and its row in place.
// Simulate mode walks the same groups and logs what would happen without
// touching the filesystem or the catalog.
package resolve
