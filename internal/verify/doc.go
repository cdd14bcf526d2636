// Package verify reconciles a staging tree of previously moved duplicates
// against the digiKam catalog.
//
// Every staging file is fingerprinted the way digiKam does and looked up in
// the catalog. A file is only eligible for deletion when exactly one catalog
// image matches and the full contents of both files are identical; deletion
// itself additionally requires Config.Delete.
package verify
