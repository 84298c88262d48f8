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

// Command ksim is a host-side simulator for the packed descriptor table
// cmd/kbuild emits: it boots a pkg/kernel.Kernel over host-backed
// per-task memory arenas and drives its tick source, without requiring
// real ARMv7-M/ARMv8-M silicon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/oxidecomputer/hubris-sub002/pkg/abi"
	"github.com/oxidecomputer/hubris-sub002/pkg/kernel"
	"github.com/oxidecomputer/hubris-sub002/pkg/klog"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&dumpCmd{}, "")
	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// simNVIC is an in-memory stand-in for the interrupt controller: it
// just remembers mask state for ksim's own diagnostics. Nothing in the
// simulator actually fires interrupts on a timer of its own; a future
// peripheral model would call Kernel.HandleIRQ directly.
type simNVIC struct {
	masked map[int]bool
}

func newSimNVIC() *simNVIC { return &simNVIC{masked: make(map[int]bool)} }
func (n *simNVIC) Mask(irq int)   { n.masked[irq] = true }
func (n *simNVIC) Unmask(irq int) { n.masked[irq] = false }

// loadDescriptor reads and decodes a kbuild-produced descriptor file.
func loadDescriptor(path string) (*abi.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading descriptor %q", path)
	}
	d, err := abi.Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding descriptor %q", path)
	}
	return d, nil
}

// arenaSize is the fixed per-task arena size the simulator allocates;
// real boards size per-task RAM from the board config, but ksim only
// needs enough room to back whatever regions a task descriptor claims.
const arenaSize = 1 << 16

// buildKernel materializes a runnable kernel.Kernel and a matching set
// of MmapArenas/TaskLoaders from a decoded descriptor table.
func buildKernel(d *abi.Descriptor, log klog.Logger) (*kernel.Kernel, []*TaskLoader, error) {
	tasks := make([]*kernel.Task, len(d.Tasks))
	mem := make([]kernel.Memory, len(d.Tasks))
	loaders := make([]*TaskLoader, len(d.Tasks))

	for i, td := range d.Tasks {
		var regions kernel.RegionTable
		regions = append(regions, kernel.Region{}) // null region, slot 0
		for _, ridx := range td.Regions {
			if ridx == 0xF || int(ridx) >= len(d.Regions) {
				continue
			}
			rd := d.Regions[ridx]
			regions = append(regions, kernel.Region{Base: rd.Base, Size: rd.Size, Attrs: kernel.Attrs(rd.Attrs)})
		}

		origin := uint32(0)
		for _, r := range regions {
			if r.Size > 0 {
				origin = r.Base
				break
			}
		}
		arena, err := NewMmapArena(origin, arenaSize)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "allocating arena for task %d", i)
		}
		mem[i] = arena
		loaders[i] = &TaskLoader{Arena: arena}

		tasks[i] = &kernel.Task{
			Index:       i,
			Generation:  0,
			Priority:    int(td.Priority),
			Regs:        &kernel.SimRegisters{},
			Regions:     regions,
			StartAtBoot: td.Flags&abi.FlagStartAtBoot != 0,
			EntryPoint:  td.EntryPoint,
			InitialSP:   td.InitialSP,
		}
	}

	var irqs []kernel.IRQBinding
	for _, ib := range d.IRQs {
		irqs = append(irqs, kernel.IRQBinding{IRQ: int(ib.IRQ), Task: int(ib.Task), Notification: kernel.NotificationSet(ib.Notification)})
	}

	cfg := kernel.Config{
		IRQs:           irqs,
		SupervisorTask: int(d.Header.SupervisorTask),
		SupervisorBit:  kernel.NotificationSet(d.Header.SupervisorNotifyBit),
	}
	k := kernel.NewKernel(tasks, mem, newSimNVIC(), cfg, log)
	return k, loaders, nil
}

type runCmd struct {
	descriptor string
	hz         float64
	verbose    bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "boot and tick a kernel from a descriptor table" }
func (*runCmd) Usage() string    { return "run -descriptor=<path> [-hz=N]\n" }

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.descriptor, "descriptor", "descriptor.bin", "descriptor table path")
	f.Float64Var(&c.hz, "hz", 100, "tick rate")
	f.BoolVar(&c.verbose, "v", false, "verbose logging")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	level := logrus.InfoLevel
	if c.verbose {
		level = logrus.DebugLevel
	}
	log := klog.New(level)

	if err := dropCapabilities(); err != nil {
		log.Warningf("dropping capabilities: %v (continuing without)", err)
	}

	d, err := loadDescriptor(c.descriptor)
	if err != nil {
		log.Errorf("run: %v", err)
		return subcommands.ExitFailure
	}
	k, loaders, err := buildKernel(d, log)
	if err != nil {
		log.Errorf("run: %v", err)
		return subcommands.ExitFailure
	}

	sim := &Simulator{Kernel: k, Loaders: loaders, TickHz: c.hz, Log: log}
	sim.Boot()

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if err := sim.Run(runCtx); err != nil && runCtx.Err() == nil {
		log.Errorf("run: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type dumpCmd struct {
	descriptor string
}

func (*dumpCmd) Name() string     { return "dump" }
func (*dumpCmd) Synopsis() string { return "print a descriptor table as YAML" }
func (*dumpCmd) Usage() string    { return "dump -descriptor=<path>\n" }

func (c *dumpCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.descriptor, "descriptor", "descriptor.bin", "descriptor table path")
}

func (c *dumpCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	d, err := loadDescriptor(c.descriptor)
	if err != nil {
		logrus.Errorf("dump: %v", err)
		return subcommands.ExitFailure
	}
	out, err := yaml.Marshal(d)
	if err != nil {
		logrus.Errorf("dump: marshaling descriptor: %v", err)
		return subcommands.ExitFailure
	}
	os.Stdout.Write(out)
	return subcommands.ExitSuccess
}
