// Package filestore supplies content checksums for galley files.
// Corrections snapshot a checksum at request time and compare it against
// the live value on read, so out-of-band file replacement is visible
// without any explicit completion call.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Store computes the current content checksum of a stored file.
type Store interface {
	Checksum(ctx context.Context, path string) (string, error)
}

// Disk hashes files on the local filesystem with SHA-256.
type Disk struct{}

func (Disk) Checksum(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open galley file: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash galley file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Static serves fixed checksums keyed by path; tests mutate the map to
// simulate file replacement.
type Static struct {
	Sums map[string]string
}

func (s Static) Checksum(_ context.Context, path string) (string, error) {
	sum, ok := s.Sums[path]
	if !ok {
		return "", fmt.Errorf("no checksum for %s", path)
	}
	return sum, nil
}
