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
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"

	"github.com/oxidecomputer/hubris-sub002/pkg/abi"
	"github.com/oxidecomputer/hubris-sub002/pkg/kernel"
)

// memoryOutput is one named span of the board's address space (spec §6
// "memory outputs").
type memoryOutput struct {
	Base uint32 `toml:"base"`
	Size uint32 `toml:"size"`
	RWX  string `toml:"rwx"` // any combination of 'r', 'w', 'x'
}

// peripheral is one named device register span (spec §6 "peripherals").
type peripheral struct {
	Base uint32 `toml:"base"`
	Size uint32 `toml:"size"`
}

// irqBinding is one task's claim on a hardware interrupt (spec §4.7).
type irqBinding struct {
	IRQ          int    `toml:"irq"`
	Notification uint32 `toml:"notification"`
}

// taskConfig is one statically-configured task (spec §6 "tasks").
type taskConfig struct {
	Priority    int          `toml:"priority"`
	StartAtBoot bool         `toml:"start_at_boot"`
	StackSize   uint32       `toml:"stack_size"`
	Memory      []string     `toml:"memory"`
	Peripherals []string     `toml:"peripherals"`
	Interrupts  []irqBinding `toml:"interrupts"`
	EntryPoint  uint32       `toml:"entry_point"`
}

// supervisorConfig names the distinguished supervisor task and fault bit
// (spec §4.8/§6).
type supervisorConfig struct {
	Task            string `toml:"task"`
	NotificationBit uint32 `toml:"notification_bit"`
}

// BoardConfig is the parsed form of a board's TOML description (spec
// §6 "Configuration input").
type BoardConfig struct {
	Memory      map[string]memoryOutput `toml:"memory"`
	Peripherals map[string]peripheral   `toml:"peripherals"`
	Kernel      map[string]uint32       `toml:"kernel"`
	Tasks       map[string]taskConfig   `toml:"tasks"`
	Supervisor  supervisorConfig        `toml:"supervisor"`
}

const maxTaskPeripherals = 6

// loadBoardConfig reads and parses a board TOML file.
func loadBoardConfig(path string) (*BoardConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading board config %q", path)
	}
	var cfg BoardConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing board config %q", path)
	}
	return &cfg, nil
}

func attrsFromRWX(rwx string) kernel.Attrs {
	var a kernel.Attrs
	for _, c := range rwx {
		switch c {
		case 'r', 'R':
			a |= kernel.AttrRead
		case 'w', 'W':
			a |= kernel.AttrWrite
		case 'x', 'X':
			a |= kernel.AttrExecute
		}
	}
	return a
}

// sortedKeys returns m's keys in a deterministic order, so a build is
// reproducible across invocations of the same config.
func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// validate checks cross-references (a task naming a memory output or
// peripheral that doesn't exist, too many peripherals, an unknown
// supervisor task) that the TOML unmarshaler itself can't catch.
func (cfg *BoardConfig) validate() error {
	for _, name := range sortedKeys(cfg.Kernel) {
		if _, ok := cfg.Memory[name]; !ok {
			return errors.Errorf("kernel requirement %q names no memory output", name)
		}
	}

	for _, tname := range sortedKeys(cfg.Tasks) {
		t := cfg.Tasks[tname]
		for _, m := range t.Memory {
			if _, ok := cfg.Memory[m]; !ok {
				return errors.Errorf("task %q references unknown memory output %q", tname, m)
			}
		}
		if len(t.Peripherals) > maxTaskPeripherals {
			return errors.Errorf("task %q uses %d peripherals, max %d", tname, len(t.Peripherals), maxTaskPeripherals)
		}
		for _, p := range t.Peripherals {
			if _, ok := cfg.Peripherals[p]; !ok {
				return errors.Errorf("task %q references unknown peripheral %q", tname, p)
			}
		}
	}

	if cfg.Supervisor.Task != "" {
		if _, ok := cfg.Tasks[cfg.Supervisor.Task]; !ok {
			return errors.Errorf("supervisor names unknown task %q", cfg.Supervisor.Task)
		}
	}
	return nil
}

// regionSpan is a fully-resolved region with the name of the task that
// owns it (empty for peripheral-only or the null region), used only for
// overlap diagnostics.
type regionSpan struct {
	owner string
	kernel.Region
}

func (r regionSpan) overlaps(other regionSpan) bool {
	a0, a1 := uint64(r.Base), uint64(r.Base)+uint64(r.Size)
	b0, b1 := uint64(other.Base), uint64(other.Base)+uint64(other.Size)
	return a0 < b1 && b0 < a1
}

// checkOverlaps enforces invariant 6 (spec §3) at build time: no two
// tasks' private regions may overlap. Two tasks sharing a peripheral
// region on purpose is legitimate (e.g. a shared DMA buffer) and is not
// flagged; only memory-output-derived (private RAM/flash) regions are
// compared against each other.
func checkOverlaps(spans []regionSpan) error {
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].owner == "" || spans[j].owner == "" || spans[i].owner == spans[j].owner {
				continue
			}
			if spans[i].overlaps(spans[j]) {
				return errors.Errorf("region overlap: task %q and task %q both claim [0x%X,0x%X)",
					spans[i].owner, spans[j].owner, spans[i].Base, uint64(spans[i].Base)+uint64(spans[i].Size))
			}
		}
	}
	return nil
}

// buildDescriptor lowers a validated BoardConfig into the packed
// descriptor table pkg/abi defines, in three passes: assign region
// table indices (null region first, then each task's private regions,
// then peripherals), build per-task descriptors referencing those
// indices, and resolve IRQ bindings against task indices.
//
// Each task's memory-output templates are deep-copied (mohae/deepcopy)
// before being turned into that task's region slice, so a later board
// revision editing one task's copy can never be found to alias another
// task's: region tables are never shared backing arrays, matching
// invariant 6 at the source level, not just in the validated output.
func buildDescriptor(cfg *BoardConfig) (*abi.Descriptor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	regions := []abi.RegionDescriptor{{Base: 0, Size: 0, Attrs: 0}} // null region, always index 0
	spans := []regionSpan{{owner: "", Region: kernel.Region{}}}

	taskNames := sortedKeys(cfg.Tasks)
	taskRegionIdx := make(map[string][]uint8, len(taskNames))

	for _, tname := range taskNames {
		t := cfg.Tasks[tname]
		var idxs []uint8
		for _, mname := range t.Memory {
			tmpl := cfg.Memory[mname]
			cloned := deepcopy.Copy(tmpl).(memoryOutput)
			idx := len(regions)
			if idx >= 0xF {
				return nil, errors.Errorf("task %q: region table exceeds %d entries", tname, 0xF)
			}
			attrs := attrsFromRWX(cloned.RWX)
			regions = append(regions, abi.RegionDescriptor{Base: cloned.Base, Size: cloned.Size, Attrs: uint32(attrs)})
			spans = append(spans, regionSpan{owner: tname, Region: kernel.Region{Base: cloned.Base, Size: cloned.Size, Attrs: attrs}})
			idxs = append(idxs, uint8(idx))
		}
		for _, pname := range t.Peripherals {
			p := cfg.Peripherals[pname]
			idx := len(regions)
			regions = append(regions, abi.RegionDescriptor{Base: p.Base, Size: p.Size, Attrs: uint32(kernel.AttrRead | kernel.AttrWrite | kernel.AttrDevice)})
			spans = append(spans, regionSpan{owner: "", Region: kernel.Region{Base: p.Base, Size: p.Size, Attrs: kernel.AttrDevice}})
			idxs = append(idxs, uint8(idx))
		}
		for len(idxs) < 8 {
			idxs = append(idxs, 0xF)
		}
		taskRegionIdx[tname] = idxs
	}

	if err := checkOverlaps(spans); err != nil {
		return nil, err
	}

	tasks := make([]abi.TaskDescriptor, len(taskNames))
	taskIndex := make(map[string]int, len(taskNames))
	for i, tname := range taskNames {
		taskIndex[tname] = i
	}
	for i, tname := range taskNames {
		t := cfg.Tasks[tname]
		var regionArr [8]uint8
		copy(regionArr[:], taskRegionIdx[tname])
		var flags abi.TaskFlags
		if t.StartAtBoot {
			flags |= abi.FlagStartAtBoot
		}
		tasks[i] = abi.TaskDescriptor{
			Regions:    regionArr,
			EntryPoint: t.EntryPoint,
			InitialSP:  t.Memory0StackTop(cfg, tname),
			Priority:   uint32(t.Priority),
			Flags:      flags,
		}
	}

	var irqs []abi.IRQDescriptor
	for _, tname := range taskNames {
		t := cfg.Tasks[tname]
		for _, ib := range t.Interrupts {
			irqs = append(irqs, abi.IRQDescriptor{
				IRQ:          uint32(ib.IRQ),
				Task:         uint32(taskIndex[tname]),
				Notification: ib.Notification,
			})
		}
	}

	var supTask, supBit uint32
	if cfg.Supervisor.Task != "" {
		supTask = uint32(taskIndex[cfg.Supervisor.Task])
		supBit = cfg.Supervisor.NotificationBit
	}

	return &abi.Descriptor{
		Header: abi.Header{
			SupervisorTask:      supTask,
			SupervisorNotifyBit: supBit,
		},
		Tasks:   tasks,
		Regions: regions,
		IRQs:    irqs,
	}, nil
}

// Memory0StackTop computes a task's initial stack pointer as the top of
// its first declared memory region, the simplest stack placement
// convention a board can use; a real board's linker script is the
// authority in practice, this only fills the descriptor field with
// something self-consistent when the config doesn't say otherwise.
func (t taskConfig) Memory0StackTop(cfg *BoardConfig, name string) uint32 {
	if len(t.Memory) == 0 {
		return 0
	}
	m := cfg.Memory[t.Memory[0]]
	return m.Base + m.Size
}
