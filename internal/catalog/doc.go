// Package catalog reads and prunes the digiKam image catalog (digikam4.db).
//
// Only the Images and Albums tables are touched. Queries are parameterized,
// every write is an explicit batched DELETE inside a transaction, and a lock
// file next to the database keeps a second digidup process from operating on
// the same catalog. The journal mode and foreign-key settings of the database
// belong to digiKam and are left as they are.
package catalog
