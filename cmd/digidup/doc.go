// Command digidup finds duplicate images in a digiKam collection, moves the
// redundant copies out of the album tree and later verifies the moved copies
// against the catalog before they are deleted.
package main
