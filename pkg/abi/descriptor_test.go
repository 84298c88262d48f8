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

package abi

import "testing"

func sampleDescriptor() *Descriptor {
	return &Descriptor{
		Header: Header{SupervisorTask: 2, SupervisorNotifyBit: 1},
		Tasks: []TaskDescriptor{
			{Regions: [maxTaskRegions]uint8{0, 1, noRegion, noRegion, noRegion, noRegion, noRegion, noRegion}, EntryPoint: 0x1000, InitialSP: 0x2000, Priority: 3, Flags: FlagStartAtBoot},
			{Regions: [maxTaskRegions]uint8{0, 2, 3, noRegion, noRegion, noRegion, noRegion, noRegion}, EntryPoint: 0x3000, InitialSP: 0x4000, Priority: 5},
		},
		Regions: []RegionDescriptor{
			{Base: 0, Size: 0, Attrs: 0},
			{Base: 0x2000_0000, Size: 0x1000, Attrs: 3},
			{Base: 0x2000_1000, Size: 0x1000, Attrs: 1},
			{Base: 0x4000_0000, Size: 0x100, Attrs: 8},
		},
		IRQs: []IRQDescriptor{
			{IRQ: 5, Task: 1, Notification: 1},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleDescriptor()
	buf := want.Encode()

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Header.Version != Version {
		t.Fatalf("decoded version: got 0x%X, want 0x%X", got.Header.Version, Version)
	}
	if got.Header.SupervisorTask != 2 || got.Header.SupervisorNotifyBit != 1 {
		t.Fatalf("decoded header: got %+v", got.Header)
	}
	if len(got.Tasks) != len(want.Tasks) || len(got.Regions) != len(want.Regions) || len(got.IRQs) != len(want.IRQs) {
		t.Fatalf("decoded table counts: got %d/%d/%d, want %d/%d/%d",
			len(got.Tasks), len(got.Regions), len(got.IRQs), len(want.Tasks), len(want.Regions), len(want.IRQs))
	}
	for i := range want.Tasks {
		if got.Tasks[i] != want.Tasks[i] {
			t.Errorf("task %d: got %+v, want %+v", i, got.Tasks[i], want.Tasks[i])
		}
	}
	for i := range want.Regions {
		if got.Regions[i] != want.Regions[i] {
			t.Errorf("region %d: got %+v, want %+v", i, got.Regions[i], want.Regions[i])
		}
	}
	for i := range want.IRQs {
		if got.IRQs[i] != want.IRQs[i] {
			t.Errorf("irq %d: got %+v, want %+v", i, got.IRQs[i], want.IRQs[i])
		}
	}
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	buf := sampleDescriptor().Encode()
	buf[0] ^= 0xFF // corrupt the version tag's low byte
	if _, err := Decode(buf); err == nil {
		t.Fatalf("Decode accepted a corrupted version tag")
	}
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	buf := sampleDescriptor().Encode()
	if _, err := Decode(buf[:len(buf)-4]); err == nil {
		t.Fatalf("Decode accepted a truncated buffer")
	}
}

func TestPackRegionsRoundTrip(t *testing.T) {
	in := [maxTaskRegions]uint8{0, 1, 2, noRegion, noRegion, noRegion, noRegion, 7}
	lo, hi := packRegions(in)
	out := unpackRegions(lo, hi)
	if out != in {
		t.Fatalf("packRegions/unpackRegions round trip: got %v, want %v", out, in)
	}
}
