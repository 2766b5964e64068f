package fingerprint

import "bytes"

// ManagerVersion is the version bucket derived from JndiManager.class.
type ManagerVersion int

const (
	ManagerNotFound ManagerVersion = iota
	ManagerV20V214
	ManagerV215
	ManagerV216
	ManagerV217
	ManagerV212Patch
)

func (v ManagerVersion) String() string {
	switch v {
	case ManagerNotFound:
		return "NOT_FOUND"
	case ManagerV20V214:
		return "v20_v214"
	case ManagerV215:
		return "v215"
	case ManagerV216:
		return "v216"
	case ManagerV217:
		return "v217"
	case ManagerV212Patch:
		return "v212_PATCH"
	default:
		return "UNKNOWN"
	}
}

// LookupVersion is the version bucket derived from JndiLookup.class.
type LookupVersion int

const (
	LookupNotFound LookupVersion = iota
	LookupV20
	LookupV21Plus
	LookupV212Patch
)

func (v LookupVersion) String() string {
	switch v {
	case LookupNotFound:
		return "NOT_FOUND"
	case LookupV20:
		return "v20"
	case LookupV21Plus:
		return "v21_PLUS"
	case LookupV212Patch:
		return "v212_PATCH"
	default:
		return "UNKNOWN"
	}
}

// ClassifyManager buckets the raw bytes of a JndiManager class. It never
// returns ManagerNotFound.
func (m Markers) ClassifyManager(content []byte) ManagerVersion {
	baseline := contains(content, m.Baseline)
	enable := contains(content, m.JndiEnable)

	switch {
	case baseline && enable:
		return ManagerV216
	case baseline:
		return ManagerV215
	case enable && contains(content, m.LookupEnabled):
		return ManagerV217
	case enable:
		return ManagerV212Patch
	}

	return ManagerV20V214
}

// ClassifyLookup buckets the raw bytes of a JndiLookup class. It never
// returns LookupNotFound.
func (m Markers) ClassifyLookup(content []byte) LookupVersion {
	if contains(content, m.LookupModern) {
		return LookupV21Plus
	} else if contains(content, m.LookupBackport) {
		return LookupV212Patch
	}

	return LookupV20
}

// an empty marker never matches
func contains(content, marker []byte) bool {
	return len(marker) > 0 && bytes.Contains(content, marker)
}
