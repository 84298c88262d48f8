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

// idxBits is the number of low bits of a TaskID devoted to the task index;
// the remaining high bits are the generation.
const idxBits = 10

// idxMask extracts the index portion of a packed TaskID.
const idxMask = uint16(1)<<idxBits - 1

// maxTasks is the number of indices this TaskID encoding can express;
// the last of them (idxMask) is reserved for kernelTaskID.
const maxTasks = int(idxMask) + 1

// genBits is the width of the generation counter: 2^genBits-1 restarts can
// occur before a generation number wraps and reuse becomes possible.
const genBits = 16 - idxBits

// genMask is the all-ones mask for a Generation value.
const genMask = Generation(1)<<genBits - 1

// Generation counts task restarts, wrapping modulo 2^genBits.
type Generation uint8

// Next returns the generation that follows g after a restart.
func (g Generation) Next() Generation {
	return (g + 1) & genMask
}

// TaskID is the wire form of a task reference at the syscall boundary: a
// packed 16-bit value of task index (low idxBits bits) and generation
// (remaining high bits). See spec §3 "TaskID".
type TaskID uint16

// kernelTaskID is the reserved pseudo-task ID used as the synthetic sender
// of kernel-originated notifications (spec §6 "Pseudo-task IDs").
const kernelTaskID TaskID = TaskID(idxMask) // all index bits set, generation 0: never a valid task index

// DeadResponseCode is the all-ones sentinel response code delivered to a
// task whose peer restarted while it was blocked (spec §6 "Dead-peer
// sentinel").
const DeadResponseCode uint32 = 0xFFFFFFFF

// NewTaskID packs an index and generation into a TaskID.
func NewTaskID(index int, gen Generation) TaskID {
	return TaskID(uint16(gen)<<idxBits | (uint16(index) & idxMask))
}

// Index extracts the task-table index named by id.
func (id TaskID) Index() int {
	return int(uint16(id) & idxMask)
}

// Generation extracts the generation named by id.
func (id TaskID) Generation() Generation {
	return Generation(uint16(id) >> idxBits)
}

// IsKernel reports whether id is the synthetic sender used for
// notifications, never a real task.
func (id TaskID) IsKernel() bool {
	return id == kernelTaskID
}
