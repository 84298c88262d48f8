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

// RegionLoader programs the real hardware MPU to match a task's
// RegionTable on every context switch (spec §4.2); cmd/ksim's loader
// uses mmap/mprotect instead and runs once per task at boot. It is
// deliberately not a Kernel field: which task runs next is decided by
// PickNext, a free function, and the actual switch (saving the old
// task's register file, loading the new one, reprogramming the MPU,
// returning to user code) happens in board-specific code that calls
// ProgramRegions after PickNext resolves an index, not inside this
// package.
type RegionLoader interface {
	// Load reprograms the MPU's region set to exactly regions,
	// replacing whatever the previous task had configured.
	Load(regions RegionTable)
}

// NullLoader is a RegionLoader that does nothing. It is the correct
// choice for pkg/kernel's own unit tests, where no code ever actually
// executes under MPU enforcement; only the kernel's own bookkeeping
// (RegionTable.CanRead/CanWrite) is under test.
type NullLoader struct{}

// Load implements RegionLoader.
func (NullLoader) Load(RegionTable) {}

// ProgramRegions is the single call site a context-switch trampoline
// needs: load t's region table if t is non-nil, otherwise leave the MPU
// alone (there is no task to switch to: PickNext returned ok=false and
// the board should enter its idle/sleep path instead).
func ProgramRegions(loader RegionLoader, t *Task) {
	if t == nil || loader == nil {
		return
	}
	loader.Load(t.Regions)
}
