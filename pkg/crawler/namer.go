// Copyright © 2018 One Concern

package crawler

import (
	"time"

	"github.com/oneconcern/modelcrawler/pkg/model"
	"github.com/segmentio/ksuid"
)

// ksuid timestamps count seconds from this epoch
var ksuidEpoch = time.Unix(1400000000, 0)

// VersionNamer generates the id of a new version of a model, detected in a release
type VersionNamer func(modelID string, release model.ReleaseDescriptor) (string, error)

// KSUIDNamer generates version ids which sort in release order.
//
// Ids are prefixed by the release date, followed by a ksuid stamped with that date whenever
// ksuid timestamps can represent it.
func KSUIDNamer(_ string, release model.ReleaseDescriptor) (string, error) {
	var (
		id  ksuid.KSUID
		err error
	)
	if release.Date.After(ksuidEpoch) {
		id, err = ksuid.NewRandomWithTime(release.Date)
	} else {
		id, err = ksuid.NewRandom()
	}
	if err != nil {
		return "", err
	}
	return release.Date.UTC().Format("20060102") + "-" + id.String(), nil
}
