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

// Logger is the ambient logging surface pkg/kernel accepts. It is
// satisfied by pkg/klog's wrapper around logrus, but kept as a small
// local interface so this package stays importable from a bare-metal
// build that carries no logging backend at all (a nil Logger is valid
// and every call site nil-checks it).
type Logger interface {
	Debugf(format string, args ...any)
	Warningf(format string, args ...any)
}

// IRQBinding is one entry of the build-time interrupt-to-notification
// table (spec §4.7 / §6).
type IRQBinding struct {
	IRQ          int
	Task         int
	Notification NotificationSet
}

// NVIC is the kernel's handle on the interrupt controller. The kernel
// masks a source the instant it fires and only unmasks it again when the
// owning task calls IRQ_CONTROL (spec §4.7); a board implementation binds
// this to real NVIC register pokes, the host simulator binds it to
// bookkeeping only.
type NVIC interface {
	Mask(irq int)
	Unmask(irq int)
}

// faultRecordCap bounds the in-memory, fixed-capacity fault history ring
// kept for diagnostics. It is not IPC-visible; it is read only through
// FaultHistory (cmd/ksim's dump command does not print it).
const faultRecordCap = 32

// FaultRecord is one entry of the kernel's fault history ring.
type FaultRecord struct {
	Tick       uint64
	Task       int
	Generation Generation
	Fault      Fault
}

// Kernel owns the task table and every engine that operates on it. One
// Kernel value models one statically-configured system; there is no
// support for creating or destroying tasks after NewKernel returns
// (spec "Non-goals": dynamic task creation).
type Kernel struct {
	tasks []*Task
	mem   []Memory

	irqs         []IRQBinding
	irqIndexByNum map[int]int // IRQ number -> index into irqs; see irq.go
	nvic          NVIC
	pendingIRQ    []int // IRQ numbers the kernel masked on fire and has not yet seen IRQ_CONTROL re-enable; see irq.go

	supervisorTask int
	supervisorBit  NotificationSet

	now uint64

	faultLog    [faultRecordCap]FaultRecord
	faultLogPos int
	faultLogLen int

	log Logger
}

// Config is the minimal set of build-time facts NewKernel needs beyond
// the task table itself; pkg/abi.Descriptor carries the on-disk form of
// this same information (spec §6).
type Config struct {
	IRQs           []IRQBinding
	SupervisorTask int
	SupervisorBit  NotificationSet
}

// NewKernel constructs a Kernel over tasks (already populated with their
// static region tables, priorities, and start flags) and their backing
// Memory implementations, index-aligned with tasks. log may be nil.
func NewKernel(tasks []*Task, mem []Memory, nvic NVIC, cfg Config, log Logger) *Kernel {
	k := &Kernel{
		tasks:          tasks,
		mem:            mem,
		irqs:           cfg.IRQs,
		irqIndexByNum:  make(map[int]int, len(cfg.IRQs)),
		nvic:           nvic,
		supervisorTask: cfg.SupervisorTask,
		supervisorBit:  cfg.SupervisorBit,
		log:            log,
	}
	for i, b := range cfg.IRQs {
		k.irqIndexByNum[b.IRQ] = i
	}
	for _, t := range tasks {
		if t.StartAtBoot {
			t.State = Healthy(HealthyRunnable())
		} else {
			t.State = Healthy(HealthyStopped())
		}
	}
	return k
}

// Now returns the current tick count.
func (k *Kernel) Now() uint64 { return k.now }

// NumTasks returns the size of the task table.
func (k *Kernel) NumTasks() int { return len(k.tasks) }

// Task returns the task at index idx, or nil if idx is out of range.
func (k *Kernel) Task(idx int) *Task {
	if idx < 0 || idx >= len(k.tasks) {
		return nil
	}
	return k.tasks[idx]
}

// CurrentTaskID returns the TaskID naming whatever task currently
// occupies index idx, backing the CURRENT_TASK_ID ancillary syscall: a
// task that only remembers an index, not a generation, can recover a
// live TaskID for it.
func (k *Kernel) CurrentTaskID(idx int) (TaskID, bool) {
	t := k.Task(idx)
	if t == nil {
		return 0, false
	}
	return t.TaskID(), true
}

func (k *Kernel) debugf(format string, args ...any) {
	if k.log != nil {
		k.log.Debugf(format, args...)
	}
}

func (k *Kernel) warningf(format string, args ...any) {
	if k.log != nil {
		k.log.Warningf(format, args...)
	}
}

func (k *Kernel) recordFault(idx int, t *Task) {
	k.faultLog[k.faultLogPos] = FaultRecord{
		Tick:       k.now,
		Task:       idx,
		Generation: t.Generation,
		Fault:      t.State.Fault,
	}
	k.faultLogPos = (k.faultLogPos + 1) % faultRecordCap
	if k.faultLogLen < faultRecordCap {
		k.faultLogLen++
	}
}

// FaultHistory returns up to the last faultRecordCap fault records,
// oldest first.
func (k *Kernel) FaultHistory() []FaultRecord {
	out := make([]FaultRecord, 0, k.faultLogLen)
	start := k.faultLogPos - k.faultLogLen
	for i := 0; i < k.faultLogLen; i++ {
		out = append(out, k.faultLog[(start+i+faultRecordCap*2)%faultRecordCap])
	}
	return out
}
