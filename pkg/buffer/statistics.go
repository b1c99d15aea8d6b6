package buffer

import "sync/atomic"

// Statistics counts buffer activity. All methods are safe for concurrent use.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	peeks     atomic.Int64
	overflows atomic.Int64
	drops     atomic.Int64
	size      atomic.Int64
	highWater atomic.Int64
}

// NewStatistics returns zeroed statistics.
func NewStatistics() *Statistics { return &Statistics{} }

func (s *Statistics) Write()    { s.writes.Add(1) }
func (s *Statistics) Read()     { s.reads.Add(1) }
func (s *Statistics) Peek()     { s.peeks.Add(1) }
func (s *Statistics) Overflow() { s.overflows.Add(1) }
func (s *Statistics) Drop()     { s.drops.Add(1) }

// UpdateSize records the current size and raises the high-water mark.
func (s *Statistics) UpdateSize(n int64) {
	s.size.Store(n)
	for {
		hw := s.highWater.Load()
		if n <= hw || s.highWater.CompareAndSwap(hw, n) {
			return
		}
	}
}

func (s *Statistics) Writes() int64      { return s.writes.Load() }
func (s *Statistics) Reads() int64       { return s.reads.Load() }
func (s *Statistics) Peeks() int64       { return s.peeks.Load() }
func (s *Statistics) Overflows() int64   { return s.overflows.Load() }
func (s *Statistics) Drops() int64       { return s.drops.Load() }
func (s *Statistics) CurrentSize() int64 { return s.size.Load() }

// MaxSize is the most items the buffer has held at once.
func (s *Statistics) MaxSize() int64 { return s.highWater.Load() }

// DropRate is drops per write, zero before the first write.
func (s *Statistics) DropRate() float64 {
	w := s.Writes()
	if w == 0 {
		return 0
	}
	return float64(s.Drops()) / float64(w)
}
