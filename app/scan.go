package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dutchcoders/log4shell-scanner/archive"
	"github.com/dutchcoders/log4shell-scanner/inspect"
)

// validate checks the root and the excluded directories before anything is
// scanned.
func (b *scanner) validate() (archive.ExcludeSet, error) {
	if b.root == "" {
		return nil, usageErrorf("no root path given")
	}

	fi, err := os.Stat(b.root)
	if err != nil || !(fi.IsDir() || fi.Mode().IsRegular() && b.extensions.Accept(fi.Name())) {
		return nil, usageErrorf("%s is not a directory or an archive", b.root)
	}

	excludes := archive.ExcludeSet{}

	for _, p := range b.excludeList {
		if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
			return nil, usageErrorf("%s is not a directory", p)
		}

		if err := excludes.Add(p); err != nil {
			return nil, usageErrorf("%s: %s", p, err.Error())
		}
	}

	for _, p := range b.systemExcludes {
		if err := excludes.Add(p); err != nil {
			return nil, err
		}
	}

	return excludes, nil
}

func (b *scanner) Scan(ctx context.Context) error {
	excludes, err := b.validate()
	if err != nil {
		return err
	}

	dr, err := archive.NewDirectoryReader(b.root, excludes, b.excludePatterns, b.extensions)
	if err != nil {
		return usageErrorf("%s: %s", b.root, err.Error())
	}

	if !b.quiet {
		log.Infof("Scanning %s", b.root)

		if len(b.excludeList) > 0 {
			log.Infof("Excluded: %v", b.excludeList)
		}
	}

	start := time.Now()

	stop := b.startProgress(start)
	defer stop()

	candidates := dr.Walk(ctx)

	wg := sync.WaitGroup{}
	for i := 0; i < b.numThreads; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for c := range candidates {
				b.scanCandidate(c)
			}
		}()
	}

	wg.Wait()
	stop()

	b.summary(time.Since(start))
	return ctx.Err()
}

func (b *scanner) scanCandidate(c archive.Candidate) {
	r := &report{}
	defer b.flush(r)

	if c.Err != nil {
		r.Error(c.Path, &FilesystemError{Path: c.Path, Err: c.Err})
		return
	}

	b.stats.IncFile()

	if b.verbose {
		log.Infof("Inspecting %s", c.Path)
	}

	err := b.inspector.InspectFile(c.Path, c.Rel, r)
	if err == nil {
		return
	}

	var coe *inspect.ContainerOpenError
	if errors.As(err, &coe) {
		path := coe.Path
		if path == "" {
			path = c.Path
		}

		r.Error(path, err)
		return
	}

	r.Error(c.Path, &FilesystemError{Path: c.Path, Err: err})
}

// startProgress shows a live status line until the returned func is
// called.
func (b *scanner) startProgress(start time.Time) func() {
	if !b.progress || b.quiet {
		return func() {}
	}

	b.writer.Start()

	done := make(chan struct{})
	wg := sync.WaitGroup{}
	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(b.writer.RefreshInterval)
		defer ticker.Stop()

		for {
			fmt.Fprintf(b.writer, "[ ] Scanned %d archives, %d vulnerable, %d errors (%s)\n",
				b.stats.Files(), b.stats.Vulnerable(), b.stats.Errors(), FormatDuration(time.Since(start)))

			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()

	once := sync.Once{}
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			b.writer.Stop()
		})
	}
}

func (b *scanner) summary(d time.Duration) {
	if b.quiet {
		return
	}

	log.Infof("Scanned %d archives in %s: %d vulnerable, %d mitigated, %d inconsistent, %d errors",
		b.stats.Files(), FormatDuration(d), b.stats.Vulnerable(), b.stats.Mitigated(), b.stats.Inconsistent(), b.stats.Errors())
}
