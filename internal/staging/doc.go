// Package staging inspects and tidies the folder duplicates are moved into.
//
// The inventory helpers report what is still waiting for verification, and
// PruneEmpty removes the directory skeleton that remains once verified files
// have been deleted. Nothing here ever removes a file.
package staging
