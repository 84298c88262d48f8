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

// Package abi defines the on-disk, bit-exact little-endian layout of the
// build-time descriptor table (spec §6) that cmd/kbuild emits and a
// board's boot code (or cmd/ksim) parses back into the in-memory task
// and region tables pkg/kernel operates on. Every encode/decode here is
// plain fixed-width integer packing, so it is built on encoding/binary
// rather than any third-party library: there's no framing, schema
// evolution, or variable-length structure for a serialization library
// to help with.
package abi

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Version is the descriptor table's format tag, fixed for this layout.
const Version uint32 = 0x1DE_FA7A1

// maxTaskRegions is the number of region-table-index slots packed into
// a TaskDescriptor's two region-index words (8 indices of 4 bits each,
// per word of 32 bits split across two u32s; spec §6 "two packed u32s
// naming up to 8 region indices").
const maxTaskRegions = 8

// TaskFlags is the bit set packed into a TaskDescriptor's flags word.
type TaskFlags uint32

// FlagStartAtBoot marks a task that should begin Runnable rather than
// Stopped (spec §3 "start-at-boot flag").
const FlagStartAtBoot TaskFlags = 1 << 0

// TaskDescriptor is the on-disk form of one task table entry.
type TaskDescriptor struct {
	// Regions names up to maxTaskRegions indices into the region
	// descriptor table that follows; unused slots are 0xF (noRegion).
	// The null region itself is index 0.
	Regions    [maxTaskRegions]uint8
	EntryPoint uint32
	InitialSP  uint32
	Priority   uint32
	Flags      TaskFlags
}

const noRegion uint8 = 0xF

// RegionDescriptor is the on-disk form of one memory region: base,
// size, and an attribute bit set matching pkg/kernel.Attrs exactly, so a
// board loader can pass the decoded value straight through without a
// translation table.
type RegionDescriptor struct {
	Base  uint32
	Size  uint32
	Attrs uint32
}

// IRQDescriptor is the on-disk form of one interrupt-to-notification
// binding (spec §4.7/§6).
type IRQDescriptor struct {
	IRQ          uint32
	Task         uint32
	Notification uint32
}

// Header is the fixed-size table header preceding the three descriptor
// arrays (spec §6).
type Header struct {
	Version             uint32
	TaskCount           uint32
	RegionCount         uint32
	IRQCount            uint32
	SupervisorTask      uint32
	SupervisorNotifyBit uint32
}

const headerWords = 6
const taskDescriptorWords = 1 + 1 /* regions packed into 2 u32s, see below */ + 1 + 1 + 1 + 1
const regionDescriptorWords = 3
const irqDescriptorWords = 3

// Descriptor is the fully decoded, in-memory form of a descriptor
// table.
type Descriptor struct {
	Header  Header
	Tasks   []TaskDescriptor
	Regions []RegionDescriptor
	IRQs    []IRQDescriptor
}

// packRegions packs t.Regions' eight 4-bit indices into two u32 words,
// four nibbles each, low nibble first (the "two packed u32s naming up
// to 8 region indices" of spec §6).
func packRegions(regions [maxTaskRegions]uint8) (lo, hi uint32) {
	for i := 0; i < 4; i++ {
		lo |= uint32(regions[i]&0xF) << (4 * i)
	}
	for i := 0; i < 4; i++ {
		hi |= uint32(regions[4+i]&0xF) << (4 * i)
	}
	return lo, hi
}

func unpackRegions(lo, hi uint32) [maxTaskRegions]uint8 {
	var out [maxTaskRegions]uint8
	for i := 0; i < 4; i++ {
		out[i] = uint8(lo>>(4*i)) & 0xF
	}
	for i := 0; i < 4; i++ {
		out[4+i] = uint8(hi>>(4*i)) & 0xF
	}
	return out
}

// Encode serializes d into its on-disk little-endian byte form.
func (d *Descriptor) Encode() []byte {
	h := d.Header
	h.Version = Version
	h.TaskCount = uint32(len(d.Tasks))
	h.RegionCount = uint32(len(d.Regions))
	h.IRQCount = uint32(len(d.IRQs))

	total := headerWords + len(d.Tasks)*taskDescriptorWords +
		len(d.Regions)*regionDescriptorWords + len(d.IRQs)*irqDescriptorWords
	buf := make([]byte, total*4)
	w := 0
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[w*4:], v)
		w++
	}

	put(h.Version)
	put(h.TaskCount)
	put(h.RegionCount)
	put(h.IRQCount)
	put(h.SupervisorTask)
	put(h.SupervisorNotifyBit)

	for _, t := range d.Tasks {
		lo, hi := packRegions(t.Regions)
		put(lo)
		put(hi)
		put(t.EntryPoint)
		put(t.InitialSP)
		put(t.Priority)
		put(uint32(t.Flags))
	}
	for _, r := range d.Regions {
		put(r.Base)
		put(r.Size)
		put(r.Attrs)
	}
	for _, irq := range d.IRQs {
		put(irq.IRQ)
		put(irq.Task)
		put(irq.Notification)
	}
	return buf
}

// Decode parses the on-disk form produced by Encode, validating the
// version tag and that buf is exactly the length its own header claims.
func Decode(buf []byte) (*Descriptor, error) {
	if len(buf) < headerWords*4 {
		return nil, errors.Errorf("abi: descriptor too short: %d bytes", len(buf))
	}
	r := 0
	get := func() uint32 {
		v := binary.LittleEndian.Uint32(buf[r*4:])
		r++
		return v
	}

	h := Header{
		Version:             get(),
		TaskCount:           get(),
		RegionCount:         get(),
		IRQCount:            get(),
		SupervisorTask:      get(),
		SupervisorNotifyBit: get(),
	}
	if h.Version != Version {
		return nil, errors.Errorf("abi: bad version tag 0x%X, want 0x%X", h.Version, Version)
	}

	want := headerWords + int(h.TaskCount)*taskDescriptorWords +
		int(h.RegionCount)*regionDescriptorWords + int(h.IRQCount)*irqDescriptorWords
	if len(buf) != want*4 {
		return nil, errors.Errorf("abi: descriptor length %d does not match header (want %d)", len(buf), want*4)
	}

	d := &Descriptor{
		Header:  h,
		Tasks:   make([]TaskDescriptor, h.TaskCount),
		Regions: make([]RegionDescriptor, h.RegionCount),
		IRQs:    make([]IRQDescriptor, h.IRQCount),
	}
	for i := range d.Tasks {
		lo, hi := get(), get()
		d.Tasks[i] = TaskDescriptor{
			Regions:    unpackRegions(lo, hi),
			EntryPoint: get(),
			InitialSP:  get(),
			Priority:   get(),
			Flags:      TaskFlags(get()),
		}
	}
	for i := range d.Regions {
		d.Regions[i] = RegionDescriptor{Base: get(), Size: get(), Attrs: get()}
	}
	for i := range d.IRQs {
		d.IRQs[i] = IRQDescriptor{IRQ: get(), Task: get(), Notification: get()}
	}
	return d, nil
}

// String renders a short human-readable summary, used by kbuild's
// info-level build log line. ksim's dump command does not use it; it
// renders the whole descriptor as YAML.
func (h Header) String() string {
	return fmt.Sprintf("descriptor{version=0x%X tasks=%d regions=%d irqs=%d supervisor=%d/%d}",
		h.Version, h.TaskCount, h.RegionCount, h.IRQCount, h.SupervisorTask, h.SupervisorNotifyBit)
}
