package storage

import "io"

// BlobStore holds sub-section PDF content. Video sub-sections never touch it;
// they carry an external URL only.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}
