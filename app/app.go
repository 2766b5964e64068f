package app

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dutchcoders/log4shell-scanner/archive"
	"github.com/dutchcoders/log4shell-scanner/fingerprint"
	"github.com/dutchcoders/log4shell-scanner/inspect"
	"github.com/fatih/color"
	"github.com/gobwas/glob"
	"github.com/gosuri/uilive"
	logging "github.com/op/go-logging"
)

var log = logging.MustGetLogger("log4shell/app")

type config struct {
	root string

	excludeList     []string
	excludePatterns []glob.Glob
	systemExcludes  []string

	numThreads int
	limits     inspect.Limits
	markers    fingerprint.Markers
	extensions archive.Extensions

	quiet    bool
	verbose  bool
	json     bool
	progress bool
}

type scanner struct {
	config

	inspector *inspect.Inspector

	writer   *uilive.Writer
	output   io.Writer
	reporter Reporter
	logfile  *writer

	images imageClient

	m     sync.Mutex
	stats Stats
}

type writer struct {
	f io.WriteCloser
	m sync.Mutex
}

func NewWriter(path string) (*writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	return &writer{
		f: f,
		m: sync.Mutex{},
	}, nil
}

func (w *writer) WriteLine(format string, args ...interface{}) {
	w.m.Lock()
	defer w.m.Unlock()

	fmt.Fprintln(w.f, fmt.Sprintf(format, args...))
}

func (w *writer) Close() error {
	return w.f.Close()
}

func New(options ...OptionFn) (*scanner, error) {
	b := &scanner{
		config: config{
			numThreads:     10,
			limits:         inspect.DefaultLimits(),
			markers:        fingerprint.DefaultMarkers(),
			extensions:     archive.DefaultExtensions(),
			systemExcludes: []string{"/proc", "/dev", "/net", "/sys"},
		},
		output: color.Output,
	}

	b.writer = uilive.New()
	b.writer.Out = color.Error
	b.writer.RefreshInterval = 500 * time.Millisecond

	for _, optionFunc := range options {
		if err := optionFunc(b); err != nil {
			return nil, err
		}
	}

	if b.reporter == nil {
		if b.json {
			b.reporter = NewJSONReporter(b.output)
		} else {
			b.reporter = NewTextReporter(b.output)
		}
	}

	b.inspector = inspect.New(
		fingerprint.NewExtractor(b.markers),
		inspect.WithLimits(b.limits),
		inspect.WithExtensions(b.extensions),
	)

	return b, nil
}

// Close releases the log file, if any.
func (b *scanner) Close() error {
	if b.logfile == nil {
		return nil
	}

	return b.logfile.Close()
}

func (b *scanner) Stats() *Stats {
	return &b.stats
}

func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	return fmt.Sprintf("%02dh:%02dm:%02ds", h, m, s)
}
