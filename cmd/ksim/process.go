// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"github.com/moby/sys/capability"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/oxidecomputer/hubris-sub002/pkg/kernel"
)

// pageSize is cached once; unix.Getpagesize() is a syscall on some
// platforms and every arena allocation calls into page math.
var pageSize = unix.Getpagesize()

func pageFloor(off int) int { return (off / pageSize) * pageSize }
func pageCeil(end int) int  { return ((end + pageSize - 1) / pageSize) * pageSize }

// MmapArena is a kernel.Memory backed by a real anonymous mmap'd
// region, so a task's actual READ/WRITE/EXECUTE attributes can be
// enforced by the host's own page tables rather than only by this
// package's bookkeeping, turning the region-containment property into
// something a SIGSEGV can falsify. Origin is the 32-bit address the
// simulated task's region table uses; ReadAt/WriteAt translate against
// it the same way pkg/kernel.FlatMemory does, just over mmap'd rather
// than make()'d bytes.
type MmapArena struct {
	Origin uint32
	mem    []byte
}

// NewMmapArena allocates a size-byte anonymous, initially
// inaccessible (PROT_NONE) arena. Callers program real permissions into
// sub-ranges with Protect before a task can touch them, mirroring the
// MPU, which grants nothing until the loader runs.
func NewMmapArena(origin uint32, size int) (*MmapArena, error) {
	size = pageCeil(size)
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "mmap task arena")
	}
	return &MmapArena{Origin: origin, mem: mem}, nil
}

// Close unmaps the arena.
func (a *MmapArena) Close() error {
	return unix.Munmap(a.mem)
}

// Protect reprograms host page protection over the arena-relative byte
// range [offset, offset+length) to match attrs, rounding out to whole
// pages the way a real MPU rounds region boundaries to its own
// granularity. This is cmd/ksim's RegionLoader.Load, called once per
// task at boot rather than on every context switch: unlike real
// silicon, each simulated task owns a disjoint arena rather than all
// tasks sharing one address space whose protections change per switch,
// so there is nothing to reprogram between switches here.
func (a *MmapArena) Protect(offset, length int, attrs kernel.Attrs) error {
	if attrs.Has(kernel.AttrDevice) {
		// DEVICE regions are never general memory; the simulator has
		// no real peripheral behind them, so leave inaccessible.
		return nil
	}
	prot := unix.PROT_NONE
	if attrs.Has(kernel.AttrRead) {
		prot |= unix.PROT_READ
	}
	if attrs.Has(kernel.AttrWrite) {
		prot |= unix.PROT_WRITE
	}
	if attrs.Has(kernel.AttrExecute) {
		prot |= unix.PROT_EXEC
	}
	lo := pageFloor(offset)
	hi := pageCeil(offset + length)
	if hi > len(a.mem) {
		hi = len(a.mem)
	}
	return unix.Mprotect(a.mem[lo:hi], prot)
}

func (a *MmapArena) bounds(base, length uint32) (lo, hi int, ok bool) {
	if base < a.Origin {
		return 0, 0, false
	}
	l := uint64(base) - uint64(a.Origin)
	h := l + uint64(length)
	if h > uint64(len(a.mem)) {
		return 0, 0, false
	}
	return int(l), int(h), true
}

// ReadAt implements kernel.Memory.
func (a *MmapArena) ReadAt(base, length uint32) ([]byte, bool) {
	lo, hi, ok := a.bounds(base, length)
	if !ok {
		return nil, false
	}
	out := make([]byte, length)
	copy(out, a.mem[lo:hi])
	return out, true
}

// WriteAt implements kernel.Memory.
func (a *MmapArena) WriteAt(base uint32, data []byte) bool {
	lo, hi, ok := a.bounds(base, uint32(len(data)))
	if !ok {
		return false
	}
	copy(a.mem[lo:hi], data)
	return true
}

// TaskLoader adapts one task's MmapArena plus its region table into a
// kernel.RegionLoader.
type TaskLoader struct {
	Arena *MmapArena
}

// Load implements kernel.RegionLoader by reprogramming host page
// protection for every region in regions.
func (l *TaskLoader) Load(regions kernel.RegionTable) {
	for _, r := range regions {
		if r.Base < l.Arena.Origin {
			continue // the null region and any peripheral alias outside this arena
		}
		off := int(r.Base - l.Arena.Origin)
		_ = l.Arena.Protect(off, int(r.Size), r.Attrs)
	}
}

// dropCapabilities removes every capability from the running process's
// effective, permitted, and inheritable sets, standing in for "user
// tasks run unprivileged" (spec §2). ksim keeps every simulated task
// inside its own single process rather than one forked process per task, so this
// drops privilege for the whole simulator once at startup rather than
// per task; a host-process-per-task simulator would call this after
// each fork instead. cmd/ksim calls it before starting the tick loop.
func dropCapabilities() error {
	caps, err := capability.NewPid2(0)
	if err != nil {
		return errors.Wrap(err, "loading process capabilities")
	}
	caps.Clear(capability.CAPS | capability.BOUNDS | capability.AMBS)
	if err := caps.Apply(capability.CAPS | capability.BOUNDS | capability.AMBS); err != nil {
		return errors.Wrap(err, "dropping capabilities")
	}
	return nil
}
