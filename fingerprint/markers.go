// Package fingerprint classifies the JndiManager and JndiLookup classes of
// log4j-core by the marker strings compiled into their raw class bytes.
package fingerprint

import "strings"

const (
	JndiManagerClassName = "core/net/JndiManager.class"
	JndiLookupClassName  = "core/lookup/JndiLookup.class"
)

// Markers holds the class name suffixes and byte markers used to
// fingerprint a layer. The zero value matches nothing; use DefaultMarkers.
type Markers struct {
	ManagerSuffix string
	LookupSuffix  string

	// JndiManager markers
	Baseline      []byte // allowedJndiProtocols, introduced in 2.15
	JndiEnable    []byte // log4j2.enableJndi, 2.16 and the 2.12.2 backport
	LookupEnabled []byte // isJndiLookupEnabled, 2.17

	// JndiLookup markers
	LookupModern   []byte // only present from 2.1 on
	LookupBackport []byte // lookup disabled by the 2.12.2 backport
}

func DefaultMarkers() Markers {
	return Markers{
		ManagerSuffix:  JndiManagerClassName,
		LookupSuffix:   JndiLookupClassName,
		Baseline:       []byte("allowedJndiProtocols"),
		JndiEnable:     []byte("log4j2.enableJndi"),
		LookupEnabled:  []byte("isJndiLookupEnabled"),
		LookupModern:   []byte("LOOKUP"),
		LookupBackport: []byte("JNDI is not supported"),
	}
}

// Class identifies which tracked class an archive entry holds.
type Class int

const (
	ClassNone Class = iota
	ClassManager
	ClassLookup
)

func (c Class) String() string {
	switch c {
	case ClassManager:
		return "JndiManager"
	case ClassLookup:
		return "JndiLookup"
	default:
		return "none"
	}
}

// Extractor matches entry names against the tracked class suffixes.
type Extractor struct {
	markers Markers
}

func NewExtractor(m Markers) *Extractor {
	return &Extractor{markers: m}
}

func (e *Extractor) Markers() Markers {
	return e.markers
}

// Match returns the tracked class an entry name refers to.
func (e *Extractor) Match(name string) Class {
	if e.markers.ManagerSuffix != "" && strings.HasSuffix(name, e.markers.ManagerSuffix) {
		return ClassManager
	}

	if e.markers.LookupSuffix != "" && strings.HasSuffix(name, e.markers.LookupSuffix) {
		return ClassLookup
	}

	return ClassNone
}

// NewLayer starts an empty layer result for the container at path.
func (e *Extractor) NewLayer(path string) *Layer {
	return &Layer{
		Path:    path,
		markers: e.markers,
	}
}
