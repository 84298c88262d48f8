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

// testRig bundles a Kernel with direct access to each task's registers
// and backing memory, so tests can poke syscall arguments and inspect
// results without a real trap/return path.
type testRig struct {
	k    *Kernel
	regs []*SimRegisters
	mem  []*FlatMemory
}

// taskOrigin spaces each test task's simulated address space far enough
// apart that a bug aliasing two tasks' memory would show up as a
// corrupted read rather than silently working by accident.
func taskOrigin(i int) uint32 { return uint32(i+1) * 0x0010_0000 }

const testRAMSize = 0x1000

// newRig builds n tasks, each with a null region and one RW RAM region
// covering [taskOrigin(i), taskOrigin(i)+testRAMSize), all Runnable and
// start-at-boot. Priorities default to the task's own index (lower index
// = higher priority) unless overridden by the caller after construction.
func newRig(n int) *testRig {
	tasks := make([]*Task, n)
	mem := make([]Memory, n)
	regs := make([]*SimRegisters, n)
	flats := make([]*FlatMemory, n)

	for i := 0; i < n; i++ {
		regs[i] = &SimRegisters{}
		flats[i] = &FlatMemory{Origin: taskOrigin(i), Buf: make([]byte, testRAMSize)}
		mem[i] = flats[i]
		tasks[i] = &Task{
			Index:    i,
			Priority: i,
			Regs:     regs[i],
			Regions: RegionTable{
				{},
				{Base: taskOrigin(i), Size: testRAMSize, Attrs: AttrRead | AttrWrite},
			},
			StartAtBoot: true,
		}
	}

	k := NewKernel(tasks, mem, noopNVIC{}, Config{}, nil)
	return &testRig{k: k, regs: regs, mem: flats}
}

// taskSlice exposes the rig's tasks as the []*Task PickNext expects;
// pkg/kernel itself never needs this beyond tests since each engine
// method works through *Kernel.
func (r *testRig) taskSlice() []*Task {
	out := make([]*Task, r.k.NumTasks())
	for i := range out {
		out[i] = r.k.Task(i)
	}
	return out
}

type noopNVIC struct{}

func (noopNVIC) Mask(int)   {}
func (noopNVIC) Unmask(int) {}

func (r *testRig) setSend(caller int, calleeID TaskID, op uint16, msgBase, msgLen, respBase, respLen, leaseBase, leaseLen uint32) {
	reg := r.regs[caller]
	reg.Args[0] = uint32(calleeID)<<16 | uint32(op)
	reg.Args[1] = msgBase
	reg.Args[2] = msgLen
	reg.Args[3] = respBase
	reg.Args[4] = respLen
	reg.Args[5] = leaseBase
	reg.Args[6] = leaseLen
}

func (r *testRig) setReceiveOpen(caller int, bufBase, bufLen uint32) {
	reg := r.regs[caller]
	reg.Args[0] = bufBase
	reg.Args[1] = bufLen
	reg.Args[2] = 0
}

func (r *testRig) setReceiveClosed(caller int, bufBase, bufLen uint32, from int) {
	reg := r.regs[caller]
	reg.Args[0] = bufBase
	reg.Args[1] = bufLen
	reg.Args[2] = 1
	reg.Args[3] = uint32(from)
}

func (r *testRig) setReply(replier int, target TaskID, code uint32, payloadBase, payloadLen uint32) {
	reg := r.regs[replier]
	reg.Args[0] = uint32(target)
	reg.Args[1] = code
	reg.Args[2] = payloadBase
	reg.Args[3] = payloadLen
}

func (r *testRig) setBorrow(caller int, lender TaskID, leaseIndex int, offset, localBase, localLen uint32) {
	reg := r.regs[caller]
	reg.Args[0] = uint32(leaseIndex)
	reg.Args[1] = offset
	reg.Args[2] = localBase
	reg.Args[3] = localLen
	reg.Args[4] = uint32(lender)
}

// putLeaseTable writes count lease records into caller's own memory at
// base and points its SEND args at that table (caller must already be
// mid-setSend or about to be).
func (r *testRig) putLeaseTable(caller int, base uint32, leases []Lease) {
	buf := make([]byte, len(leases)*leaseSize)
	for i, l := range leases {
		off := i * leaseSize
		putLE32(buf[off:], uint32(l.Attrs))
		putLE32(buf[off+4:], l.Base)
		putLE32(buf[off+8:], l.Length)
	}
	r.mem[caller].WriteAt(base, buf)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
