// Package parquet archives swept samples to Parquet files.
//
// An archive is written under a ".partial" name and renamed into place on
// Commit, so a file at its final path is always complete. The sweep cutoff
// is stored in the file's key/value metadata.
package parquet
