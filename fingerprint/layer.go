package fingerprint

// Layer collects the signals of the direct entries of one opened container.
// Entries of nested containers belong to their own Layer.
type Layer struct {
	Path string

	Manager ManagerVersion
	Lookup  LookupVersion

	// number of entries seen per tracked class
	ManagerHits int
	LookupHits  int

	markers Markers
}

// Record classifies content as the given class and stores the signal. The
// most recently recorded occurrence wins; duplicate is true when the class
// was already seen in this layer.
func (l *Layer) Record(class Class, content []byte) (duplicate bool) {
	switch class {
	case ClassManager:
		duplicate = l.ManagerHits > 0
		l.ManagerHits++
		l.Manager = l.markers.ClassifyManager(content)
	case ClassLookup:
		duplicate = l.LookupHits > 0
		l.LookupHits++
		l.Lookup = l.markers.ClassifyLookup(content)
	}

	return duplicate
}

// Found reports whether any tracked class was present in the layer.
func (l *Layer) Found() bool {
	return l.Manager != ManagerNotFound || l.Lookup != LookupNotFound
}

// Ambiguous reports whether a tracked class occurred more than once.
func (l *Layer) Ambiguous() bool {
	return l.ManagerHits > 1 || l.LookupHits > 1
}
