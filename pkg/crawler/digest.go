// Copyright © 2018 One Concern

package crawler

import (
	"encoding/hex"

	blake2b "github.com/minio/blake2b-simd"
	"github.com/oneconcern/modelcrawler/pkg/storage"
	"github.com/spf13/afero"
)

// digest computes the blake2b-256 hash of a file, hex encoded
func digest(fs afero.Fs, name string) (string, error) {
	file, err := fs.Open(name)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := blake2b.New256()
	if _, err = storage.PipeIO(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
