// Package haltest provides an in-memory GPIO platform for tests. It lives
// outside package hal so the fake never links into a binary.
package haltest

import (
	"sync"

	"aquamon-go/errcode"
)

// FakePlatform implements hal.Platform in memory.
// Exporting an already exported pin fails with already_claimed, as the
// kernel does.
type FakePlatform struct {
	mu        sync.Mutex
	exported  map[int]bool
	dirs      map[int]string
	history   map[int][]int
	unexports map[int]int

	ExportErr   error
	DirErr      error
	WriteErr    error
	UnexportErr error
}

func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		exported:  map[int]bool{},
		dirs:      map[int]string{},
		history:   map[int][]int{},
		unexports: map[int]int{},
	}
}

func (f *FakePlatform) Export(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ExportErr != nil {
		return f.ExportErr
	}
	if f.exported[pin] {
		return errcode.AlreadyClaimed
	}
	f.exported[pin] = true
	return nil
}

func (f *FakePlatform) SetDirection(pin int, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DirErr != nil {
		return f.DirErr
	}
	if !f.exported[pin] {
		return errcode.Unavailable
	}
	f.dirs[pin] = dir
	return nil
}

func (f *FakePlatform) Write(pin int, level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteErr != nil {
		return f.WriteErr
	}
	if !f.exported[pin] {
		return errcode.Unavailable
	}
	f.history[pin] = append(f.history[pin], level)
	return nil
}

func (f *FakePlatform) Unexport(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unexports[pin]++
	if f.UnexportErr != nil {
		return f.UnexportErr
	}
	delete(f.exported, pin)
	delete(f.dirs, pin)
	return nil
}

// SetWriteErr swaps the write failure under the lock (for running workers).
func (f *FakePlatform) SetWriteErr(err error) {
	f.mu.Lock()
	f.WriteErr = err
	f.mu.Unlock()
}

func (f *FakePlatform) Exported(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exported[pin]
}

func (f *FakePlatform) Direction(pin int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirs[pin]
}

// History returns every level written to pin, oldest first.
func (f *FakePlatform) History(pin int) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.history[pin]...)
}

// Last returns the last level written to pin, or -1.
func (f *FakePlatform) Last(pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.history[pin]
	if len(h) == 0 {
		return -1
	}
	return h[len(h)-1]
}

func (f *FakePlatform) Unexports(pin int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unexports[pin]
}
