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

import "math"

// Attrs is the capability bit set carried by a Region or a Lease.
type Attrs uint32

const (
	// AttrRead grants read access to the region.
	AttrRead Attrs = 1 << iota
	// AttrWrite grants write access to the region.
	AttrWrite
	// AttrExecute grants instruction-fetch access to the region. Unused
	// by the validator (the kernel never executes task code directly)
	// but carried through to the MPU loader.
	AttrExecute
	// AttrDevice marks the region as device/strongly-ordered memory. A
	// DEVICE region is never treated as general memory by
	// CanRead/CanWrite regardless of which of the bits above it also
	// carries.
	AttrDevice
)

// Has reports whether a contains all of want.
func (a Attrs) Has(want Attrs) bool {
	return a&want == want
}

// Region is one entry of a task's static memory region table (spec §3
// "Static region table"). Region tables are fixed at build time and never
// mutated at runtime (invariant 6).
type Region struct {
	Base  uint32
	Size  uint32
	Attrs Attrs
}

// end returns the exclusive end address of the region as a 64-bit value,
// avoiding 32-bit overflow when Base+Size == 2^32.
func (r Region) end() uint64 {
	return uint64(r.Base) + uint64(r.Size)
}

// covers reports whether the half-open byte range [base, base+len) lies
// entirely within r.
func (r Region) covers(base, end uint64) bool {
	return base >= uint64(r.Base) && end <= r.end()
}

// RegionTable is the static list of regions assigned to one task, null
// region first per spec §4.2.
type RegionTable []Region

// sliceBounds computes the half-open [base, base+len) range of a
// user-supplied slice as 64-bit values, reporting ok=false if base+len
// would overflow a 32-bit address space. Overflow must be rejected before
// any containment test runs (spec §4.1).
func sliceBounds(base, length uint32) (lo, hi uint64, ok bool) {
	lo = uint64(base)
	hi = lo + uint64(length)
	if hi > math.MaxUint32+1 {
		return 0, 0, false
	}
	return lo, hi, true
}

// CanRead reports whether the slice [base, base+length) lies entirely
// within some non-device region of table that grants AttrRead. An empty
// slice (length 0) is always accepted, whatever its base.
func (t RegionTable) CanRead(base, length uint32) bool {
	return t.can(base, length, AttrRead)
}

// CanWrite reports whether the slice [base, base+length) lies entirely
// within some non-device region of table that grants AttrWrite. An empty
// slice (length 0) is always accepted, whatever its base.
func (t RegionTable) CanWrite(base, length uint32) bool {
	return t.can(base, length, AttrWrite)
}

func (t RegionTable) can(base, length uint32, want Attrs) bool {
	if length == 0 {
		return true
	}
	lo, hi, ok := sliceBounds(base, length)
	if !ok {
		return false
	}
	for _, r := range t {
		if r.Attrs.Has(AttrDevice) {
			continue
		}
		if !r.Attrs.Has(want) {
			continue
		}
		if r.covers(lo, hi) {
			return true
		}
	}
	return false
}
