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

package kernel

// Memory is the kernel's view of one task's byte-addressable memory. On
// real silicon the kernel and every task share one physical address
// space, so an implementation is just a validated pointer cast; in the
// host simulator (cmd/ksim) each task's Memory is backed by a real
// mmap'd arena (see process.go there) so that an out-of-region access
// actually SIGSEGVs, giving the region-containment property in spec §8
// something to falsify against.
//
// The kernel never calls into Memory without first checking the access
// against the owning task's RegionTable (spec invariant 5); Memory itself
// performs no permission checks and is trusted only to not panic or
// escape its bounds for any (base, length) the caller passes.
type Memory interface {
	// ReadAt returns a copy of the length bytes at base, or ok=false if
	// base/length fall outside the memory this implementation backs.
	ReadAt(base, length uint32) (data []byte, ok bool)
	// WriteAt writes data at base, returning false if base/len(data)
	// fall outside the memory this implementation backs.
	WriteAt(base uint32, data []byte) (ok bool)
}

// FlatMemory is a Memory backed by a single contiguous Go byte slice
// whose index 0 corresponds to address Origin. It performs no host-level
// protection of its own; it exists for unit tests and for ports where
// the kernel and tasks are simple Go values in one process rather than
// real MPU-isolated address spaces.
type FlatMemory struct {
	Origin uint32
	Buf    []byte
}

func (m *FlatMemory) bounds(base, length uint32) (lo, hi uint64, ok bool) {
	if base < m.Origin {
		return 0, 0, false
	}
	lo = uint64(base) - uint64(m.Origin)
	hi = lo + uint64(length)
	if hi > uint64(len(m.Buf)) {
		return 0, 0, false
	}
	return lo, hi, true
}

// ReadAt implements Memory.ReadAt.
func (m *FlatMemory) ReadAt(base, length uint32) ([]byte, bool) {
	lo, hi, ok := m.bounds(base, length)
	if !ok {
		return nil, false
	}
	out := make([]byte, length)
	copy(out, m.Buf[lo:hi])
	return out, true
}

// WriteAt implements Memory.WriteAt.
func (m *FlatMemory) WriteAt(base uint32, data []byte) bool {
	lo, hi, ok := m.bounds(base, uint32(len(data)))
	if !ok {
		return false
	}
	copy(m.Buf[lo:hi], data)
	return true
}
