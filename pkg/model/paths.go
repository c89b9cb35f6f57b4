// Copyright © 2018 One Concern

package model

import (
	"fmt"
	"path"
	"regexp"
)

const (
	// descriptor files (object metadata)
	catalogDescriptorFile = "releases.yaml"

	modelsPrefix   = "models"
	archivesPrefix = "archives"
	contentPrefix  = "content"
	releasesPrefix = "releases"

	processedMarkerFile = "processed.yaml"
)

var isValidIDRe *regexp.Regexp

func init() {
	isValidIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)
}

// ValidateID checks that an identifier may safely be used as a single path component
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("empty field: %s id is empty", kind)
	}
	if !isValidIDRe.MatchString(id) {
		return fmt.Errorf("invalid name: %s id %q contains unsupported characters", kind, id)
	}
	return nil
}

// GetPathToCatalog returns the path to the release catalog in the mirror
func GetPathToCatalog() string {
	return catalogDescriptorFile
}

// GetArchivePathToRelease returns the path to the archive of a release in the mirror
func GetArchivePathToRelease(release ReleaseDescriptor) string {
	if release.Directory == "" {
		return release.Archive
	}
	return path.Join(release.Directory, release.Archive)
}

// GetArchivePathToModelVersion returns the path to the archived content of a model version
func GetArchivePathToModelVersion(modelID, versionID, fileName string) string {
	// models/{model}/{version}/{file}
	return fmt.Sprint(modelsPrefix, "/", modelID, "/", versionID, "/", path.Base(fileName))
}

// GetWorkPathToArchive returns the local path where a release archive is fetched
func GetWorkPathToArchive(release ReleaseDescriptor) string {
	// archives/{release}/{archive}
	return fmt.Sprint(archivesPrefix, "/", release.Name, "/", path.Base(release.Archive))
}

// GetWorkPathToContent returns the local directory where a release archive is unpacked
func GetWorkPathToContent(release ReleaseDescriptor) string {
	return fmt.Sprint(contentPrefix, "/", release.Name)
}

// GetArchivePathToProcessedMarker returns the path to the marker recording that a release was fully processed
func GetArchivePathToProcessedMarker(release ReleaseDescriptor) string {
	// releases/{release}/processed.yaml
	return fmt.Sprint(releasesPrefix, "/", release.Name, "/", processedMarkerFile)
}
