// Copyright © 2018 One Concern

package storage

import (
	"context"
)

// Copy streams an object from a source store to a destination store
func Copy(ctx context.Context, sStore Store, source string, dStore Store, destination string, exclusive bool) error {
	reader, err := sStore.Get(ctx, source)
	if err != nil {
		return err
	}
	defer reader.Close()
	return dStore.Put(ctx, destination, reader, exclusive)
}
