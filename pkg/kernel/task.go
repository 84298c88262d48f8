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

// NotificationSet is a 32-bit set of pending or accepted notification
// bits (spec §3 "Notification bits"/"Notification mask").
type NotificationSet uint32

// Intersects reports whether s and mask share any set bit.
func (s NotificationSet) Intersects(mask NotificationSet) bool {
	return s&mask != 0
}

// SchedKind enumerates the scheduling sub-states of a Healthy task (spec
// §3 "State"). Go has no sum types, so SchedKind plus an auxiliary Peer
// field stands in for what would otherwise be a per-variant payload.
type SchedKind int

const (
	// Stopped tasks are never scheduled.
	Stopped SchedKind = iota
	// Runnable tasks may be picked by the scheduler.
	Runnable
	// SendingTo(Peer) tasks are blocked delivering a message to task
	// index Peer.
	SendingTo
	// AwaitingReplyFrom(Peer) tasks are blocked for a reply from task
	// index Peer.
	AwaitingReplyFrom
	// Receiving tasks are blocked in RECEIVE. Open receive (any sender)
	// is represented by Peer == receiveOpen; closed receive restricts
	// delivery to task index Peer.
	Receiving
)

// receiveOpen is the Peer sentinel for an open (any-sender) receive.
const receiveOpen = -1

// SchedState is the scheduling sub-state of a Healthy task.
type SchedState struct {
	Kind SchedKind
	Peer int // meaningful for SendingTo, AwaitingReplyFrom, Receiving
}

// HealthyStopped, HealthyRunnable and HealthyReceivingOpen construct the
// simple (peer-free) scheduling states.
func HealthyStopped() SchedState   { return SchedState{Kind: Stopped} }
func HealthyRunnable() SchedState  { return SchedState{Kind: Runnable} }
func HealthyReceivingOpen() SchedState { return SchedState{Kind: Receiving, Peer: receiveOpen} }

// HealthySendingTo builds the SendingTo(peer) state.
func HealthySendingTo(peer int) SchedState { return SchedState{Kind: SendingTo, Peer: peer} }

// HealthyAwaitingReplyFrom builds the AwaitingReplyFrom(peer) state.
func HealthyAwaitingReplyFrom(peer int) SchedState {
	return SchedState{Kind: AwaitingReplyFrom, Peer: peer}
}

// HealthyReceivingClosed builds the Receiving(Closed(peer)) state.
func HealthyReceivingClosed(peer int) SchedState {
	return SchedState{Kind: Receiving, Peer: peer}
}

// IsOpenReceive reports whether s is an open-form Receiving state.
func (s SchedState) IsOpenReceive() bool {
	return s.Kind == Receiving && s.Peer == receiveOpen
}

// AcceptsSenderFrom reports whether a Receiving state s will accept a SEND
// originating at task index from.
func (s SchedState) AcceptsSenderFrom(from int) bool {
	return s.Kind == Receiving && (s.Peer == receiveOpen || s.Peer == from)
}

// FaultSource identifies which side of a validation a MemoryAccess fault
// came from (spec §4.8).
type FaultSource int

const (
	// FaultFromUser means a CPU exception occurred while executing
	// unprivileged task code.
	FaultFromUser FaultSource = iota
	// FaultFromKernel means the kernel itself rejected a user-supplied
	// address while performing a copy or borrow on the task's behalf.
	FaultFromKernel
)

// FaultKind enumerates the fault taxonomy of spec §4.8/§7.
type FaultKind int

const (
	// FaultMemoryAccess records an invalid address, either a CPU fault
	// while running user code, or a kernel-detected validation failure.
	FaultMemoryAccess FaultKind = iota
	// FaultSyscallUsage records caller misuse: an invalid slice, an
	// unknown syscall number, an out-of-range TaskID, or a malformed
	// lease table.
	FaultSyscallUsage
	// FaultFromServer records a REPLY_FAULT delivered by a peer acting
	// as a server.
	FaultFromServer
	// FaultPanic records an explicit PANIC syscall.
	FaultPanic
)

// UsageKind enumerates the specific caller-misuse conditions that produce
// a FaultSyscallUsage fault.
type UsageKind int

const (
	UsageInvalidSlice UsageKind = iota
	UsageTaskOutOfRange
	UsageUnknownSyscall
	UsageBadLease
	UsageBadBorrow
	// UsageBadIRQMask records an IRQ_CONTROL call naming notification
	// bits that map to no IRQ binding owned by the calling task (spec
	// §4.7).
	UsageBadIRQMask
)

// Fault describes why a task was forced into the Faulted state. Only the
// fields relevant to Kind are populated, since Go cannot express a true
// sum type.
type Fault struct {
	Kind FaultKind

	// MemoryAccess fields.
	Address uint32
	HasAddr bool
	Source  FaultSource

	// SyscallUsage fields.
	Usage UsageKind

	// FromServer fields.
	Replier int
	Reason  uint32

	// Panic fields.
	Message string
}

// TaskState is a task's top-level state (spec §3 "State").
type TaskState struct {
	IsFaulted bool

	// Valid when !IsFaulted.
	Sched SchedState

	// Valid when IsFaulted.
	Fault      Fault
	PriorSched SchedState
}

// Healthy constructs a non-faulted TaskState.
func Healthy(sched SchedState) TaskState { return TaskState{Sched: sched} }

// TimerState is a task's timer multiplexing state (spec §3 "Timer
// state").
type TimerState struct {
	Deadline    uint64
	HasDeadline bool
	ToPost      NotificationSet
}

// Task is one entry of the kernel's fixed-size task table (spec §3 "Task
// record"). Its lifetime is the lifetime of the system; Restart recycles
// it in place rather than any record ever being allocated or freed.
type Task struct {
	// Index is this task's immutable position in the table.
	Index int
	// Name is a human-readable label carried only for diagnostics
	// (fault reports, ksim dump); it plays no role in any engine.
	Name string

	Generation Generation
	Priority   int
	State      TaskState

	Regs    Registers
	Regions RegionTable

	Notifications NotificationSet
	Mask          NotificationSet

	Timer TimerState

	// StartAtBoot determines the state Restart leaves the task in.
	StartAtBoot bool

	// EntryPoint and InitialSP reseed Regs on restart; a board's
	// register-file implementation is expected to reset its full saved
	// state to these on Restart, not just these two values (they're
	// recorded here only so this package has something architecture-
	// neutral to show the host simulator and tests).
	EntryPoint uint32
	InitialSP  uint32
}

// ForceFault puts t into the Faulted state, recording fault. If t was
// already faulted, the previous fault information is discarded and
// replaced but the original PriorSched is retained: a double fault
// does not lose the healthy state that existed before the *first*
// fault (spec §4.8 "double-fault").
func (t *Task) ForceFault(fault Fault) {
	if t.State.IsFaulted {
		t.State.Fault = fault
		return
	}
	t.State = TaskState{
		IsFaulted:  true,
		Fault:      fault,
		PriorSched: t.State.Sched,
	}
}

// Post ORs notification bits into t's pending set. If an unmasked bit is
// now set while t is blocked in RECEIVE (open or closed), t is made
// Runnable and Post reports true, i.e. the caller should consider
// scheduling t next. The posted bits stay pending; Post writes no
// RECEIVE results into t's registers.
func (t *Task) Post(bits NotificationSet) bool {
	t.Notifications |= bits
	if t.Notifications.Intersects(t.Mask) &&
		!t.State.IsFaulted && t.State.Sched.Kind == Receiving {
		t.State.Sched = HealthyRunnable()
		return true
	}
	return false
}

// TaskID returns the current, valid TaskID naming t.
func (t *Task) TaskID() TaskID {
	return NewTaskID(t.Index, t.Generation)
}

// Restart recycles t in place: its index is preserved, its generation is
// incremented (wrapping), its saved registers and notification state are
// cleared, and it becomes Runnable if StartAtBoot is set or Stopped
// otherwise (spec invariant 7). The caller is responsible for waking any
// peer blocked on t's previous generation; see Kernel.Restart.
func (t *Task) Restart(fresh Registers) {
	t.Generation = t.Generation.Next()
	t.Regs = fresh
	t.Notifications = 0
	t.Mask = 0
	t.Timer = TimerState{}
	if t.StartAtBoot {
		t.State = Healthy(HealthyRunnable())
	} else {
		t.State = Healthy(HealthyStopped())
	}
}
