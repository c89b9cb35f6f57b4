// Copyright © 2018 One Concern

package bdgr

var (
	versionPref = [8]byte{'v', 'e', 'r', 's', 'i', 'o', 'n', ':'}
	headPref    = [5]byte{'h', 'e', 'a', 'd', ':'}
)

// model and version ids never contain a slash
const sep = '/'

func versionKey(modelID, versionID string) []byte {
	k := make([]byte, 0, len(versionPref)+len(modelID)+len(versionID)+1)
	k = append(k, versionPref[:]...)
	k = append(k, modelID...)
	k = append(k, sep)
	return append(k, versionID...)
}

func versionsPrefix(modelID string) []byte {
	k := make([]byte, 0, len(versionPref)+len(modelID)+1)
	k = append(k, versionPref[:]...)
	k = append(k, modelID...)
	return append(k, sep)
}

func headKey(modelID string) []byte {
	k := make([]byte, 0, len(headPref)+len(modelID))
	k = append(k, headPref[:]...)
	return append(k, modelID...)
}
