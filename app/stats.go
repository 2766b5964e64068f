package app

import "sync/atomic"

type Stats struct {
	files        uint64
	images       uint64
	errors       uint64
	layers       uint64
	vulnerable   uint64
	mitigated    uint64
	inconsistent uint64
}

func (s *Stats) Files() uint64 {
	return atomic.LoadUint64(&s.files)
}

func (s *Stats) IncFile() {
	atomic.AddUint64(&s.files, 1)
}

func (s *Stats) Images() uint64 {
	return atomic.LoadUint64(&s.images)
}

func (s *Stats) IncImage() {
	atomic.AddUint64(&s.images, 1)
}

func (s *Stats) Errors() uint64 {
	return atomic.LoadUint64(&s.errors)
}

func (s *Stats) IncError() {
	atomic.AddUint64(&s.errors, 1)
}

// Layers is the number of diagnosed layers.
func (s *Stats) Layers() uint64 {
	return atomic.LoadUint64(&s.layers)
}

func (s *Stats) IncLayer() {
	atomic.AddUint64(&s.layers, 1)
}

func (s *Stats) Vulnerable() uint64 {
	return atomic.LoadUint64(&s.vulnerable)
}

func (s *Stats) IncVulnerable() {
	atomic.AddUint64(&s.vulnerable, 1)
}

func (s *Stats) Mitigated() uint64 {
	return atomic.LoadUint64(&s.mitigated)
}

func (s *Stats) IncMitigated() {
	atomic.AddUint64(&s.mitigated, 1)
}

func (s *Stats) Inconsistent() uint64 {
	return atomic.LoadUint64(&s.inconsistent)
}

func (s *Stats) IncInconsistent() {
	atomic.AddUint64(&s.inconsistent, 1)
}
