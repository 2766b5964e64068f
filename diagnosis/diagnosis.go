// Package diagnosis reconciles the JndiLookup and JndiManager signals of a
// single layer into a verdict.
package diagnosis

import (
	"encoding/json"
	"fmt"

	"github.com/dutchcoders/log4shell-scanner/fingerprint"
)

type Status int

const (
	Inconsistent Status = iota
	Vuln
	Partial
	Fix
)

func (s Status) String() string {
	switch s {
	case Vuln:
		return "VULN"
	case Partial:
		return "PARTIAL"
	case Fix:
		return "FIX"
	default:
		return "INCONSISTENT"
	}
}

// Label is the human readable verdict.
func (s Status) Label() string {
	switch s {
	case Vuln:
		return "vulnerable"
	case Partial:
		return "mitigated"
	case Fix:
		return "fixed"
	default:
		return "inconsistent"
	}
}

// Safe reports whether the status means the layer is not exploitable.
// Partial is not safe: an operator can re-enable lookups.
func (s Status) Safe() bool {
	return s == Fix
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

type Diagnosis struct {
	Status Status `json:"status"`
	Note   string `json:"note"`

	// Ambiguous is set when a tracked class occurred more than once in the
	// layer and the last occurrence was used.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

type key struct {
	lookup  fingerprint.LookupVersion
	manager fingerprint.ManagerVersion
}

var table = map[key]Diagnosis{
	{fingerprint.LookupNotFound, fingerprint.ManagerV212Patch}:  {Status: Fix, Note: "JndiLookup removed"},
	{fingerprint.LookupNotFound, fingerprint.ManagerV216}:       {Status: Fix, Note: "JndiLookup removed"},
	{fingerprint.LookupNotFound, fingerprint.ManagerV215}:       {Status: Fix, Note: "JndiLookup removed"},
	{fingerprint.LookupNotFound, fingerprint.ManagerV20V214}:    {Status: Fix, Note: "JndiLookup removed"},
	{fingerprint.LookupV20, fingerprint.ManagerNotFound}:        {Status: Vuln, Note: "Estimated version: 2.0"},
	{fingerprint.LookupV21Plus, fingerprint.ManagerV20V214}:     {Status: Vuln, Note: "Estimated version: 2.1 .. 2.14"},
	{fingerprint.LookupV21Plus, fingerprint.ManagerV215}:        {Status: Partial, Note: "Estimated version: 2.15"},
	{fingerprint.LookupV21Plus, fingerprint.ManagerV216}:        {Status: Fix, Note: "Estimated version: 2.16"},
	{fingerprint.LookupV21Plus, fingerprint.ManagerV217}:        {Status: Fix, Note: "Estimated version: 2.17"},
	{fingerprint.LookupV212Patch, fingerprint.ManagerV212Patch}: {Status: Fix, Note: "2.12.2 backport patch"},
}

// Diagnose looks up the signal pair. ok is false when neither class was
// found, in which case there is nothing to report. Pairs missing from the
// table are Inconsistent.
func Diagnose(lookup fingerprint.LookupVersion, manager fingerprint.ManagerVersion) (d Diagnosis, ok bool) {
	if lookup == fingerprint.LookupNotFound && manager == fingerprint.ManagerNotFound {
		return Diagnosis{}, false
	}

	if d, found := table[key{lookup, manager}]; found {
		return d, true
	}

	return Diagnosis{
		Status: Inconsistent,
		Note:   fmt.Sprintf("JndiLookup: %s, JndiManager: %s", lookup, manager),
	}, true
}

// DiagnoseLayer diagnoses a completed layer.
func DiagnoseLayer(l *fingerprint.Layer) (Diagnosis, bool) {
	d, ok := Diagnose(l.Lookup, l.Manager)
	if ok {
		d.Ambiguous = l.Ambiguous()
	}

	return d, ok
}
