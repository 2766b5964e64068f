package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dutchcoders/log4shell-scanner/diagnosis"
	"github.com/fatih/color"
)

// Reporter renders diagnosis lines. Calls are serialized by the scanner.
type Reporter interface {
	Report(path string, d diagnosis.Diagnosis) error
}

type TextReporter struct {
	w io.Writer
}

func NewTextReporter(w io.Writer) *TextReporter {
	return &TextReporter{w: w}
}

var statusColors = map[diagnosis.Status]*color.Color{
	diagnosis.Fix:          color.New(color.FgGreen),
	diagnosis.Vuln:         color.New(color.FgRed),
	diagnosis.Partial:      color.New(color.FgYellow),
	diagnosis.Inconsistent: color.New(color.FgRed),
}

func (r *TextReporter) Report(path string, d diagnosis.Diagnosis) error {
	label := d.Status.Label()
	if c, ok := statusColors[d.Status]; ok {
		label = c.Sprint(label)
	}

	_, err := fmt.Fprintf(r.w, "%s : %s %s\n", path, label, d.Note)
	return err
}

type JSONReporter struct {
	enc *json.Encoder
}

func NewJSONReporter(w io.Writer) *JSONReporter {
	return &JSONReporter{enc: json.NewEncoder(w)}
}

type jsonLine struct {
	Path string `json:"path"`
	diagnosis.Diagnosis
	Label string `json:"label"`
}

func (r *JSONReporter) Report(path string, d diagnosis.Diagnosis) error {
	return r.enc.Encode(jsonLine{
		Path:      path,
		Diagnosis: d,
		Label:     d.Status.Label(),
	})
}

type eventKind int

const (
	eventDiagnosis eventKind = iota
	eventWarning
	eventError
)

type event struct {
	kind eventKind
	path string
	d    diagnosis.Diagnosis
	msg  string
	err  error
}

// report buffers the events of one top-level candidate so its lines stay
// together when candidates are scanned concurrently.
type report struct {
	events []event
}

func (r *report) Diagnosis(path string, d diagnosis.Diagnosis) {
	r.events = append(r.events, event{kind: eventDiagnosis, path: path, d: d})
}

func (r *report) Warning(path string, msg string) {
	r.events = append(r.events, event{kind: eventWarning, path: path, msg: msg})
}

func (r *report) Error(path string, err error) {
	r.events = append(r.events, event{kind: eventError, path: path, err: err})
}

// flush writes the buffered events. Diagnosis lines are always written;
// warnings and errors are dropped in quiet mode.
func (b *scanner) flush(r *report) {
	b.m.Lock()
	defer b.m.Unlock()

	for _, ev := range r.events {
		switch ev.kind {
		case eventDiagnosis:
			b.count(ev.d)

			if err := b.reporter.Report(ev.path, ev.d); err != nil {
				log.Errorf("Could not write report: %s", err.Error())
			}

			if b.logfile != nil {
				b.logfile.WriteLine("%s : %s %s", ev.path, ev.d.Status.Label(), ev.d.Note)
			}
		case eventWarning:
			if b.logfile != nil {
				b.logfile.WriteLine("%s : warning %s", ev.path, ev.msg)
			}

			if b.quiet {
				continue
			}

			log.Warningf("%s: %s", ev.path, ev.msg)
		case eventError:
			b.stats.IncError()

			if b.logfile != nil {
				b.logfile.WriteLine("%s : error %s", ev.path, ev.err.Error())
			}

			if b.quiet {
				continue
			}

			log.Errorf("%s: %s", ev.path, ev.err.Error())
		}
	}
}

func (b *scanner) count(d diagnosis.Diagnosis) {
	b.stats.IncLayer()

	switch d.Status {
	case diagnosis.Vuln:
		b.stats.IncVulnerable()
	case diagnosis.Partial:
		b.stats.IncMitigated()
	case diagnosis.Inconsistent:
		b.stats.IncInconsistent()
	}
}
