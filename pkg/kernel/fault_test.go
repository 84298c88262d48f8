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

import "testing"

// TestFaultNotifiesSupervisor checks that forcing a fault posts the
// configured supervisor bit and, when the supervisor was parked waiting
// for it, proposes switching to it.
func TestFaultNotifiesSupervisor(t *testing.T) {
	r := newRig(2)
	k := r.k
	k.supervisorTask = 1
	k.supervisorBit = 0b10
	r.setReceiveOpen(1, taskOrigin(1), 64)
	if hint := k.Receive(1); hint != Other() {
		t.Fatalf("setup Receive: got %+v", hint)
	}
	k.Task(1).Mask = 0b10

	hint := k.Fault(0, Fault{Kind: FaultPanic, Message: "boom"})
	// Combine(Specific(supervisor), Specific(faulted task)) differ, so
	// the hint is Other(); PickNext then rejects the faulted task as
	// unrunnable and resolves to the supervisor by priority.
	if hint != Other() {
		t.Fatalf("Fault hint: got %+v, want Other()", hint)
	}
	if !k.Task(0).State.IsFaulted || k.Task(0).State.Fault.Kind != FaultPanic {
		t.Fatalf("faulted task state: got %+v", k.Task(0).State)
	}
	if idx, ok := PickNext(r.taskSlice(), hint, 0); !ok || idx != 1 {
		t.Fatalf("PickNext after fault: got idx=%d ok=%v, want idx=1 (supervisor)", idx, ok)
	}
	hist := k.FaultHistory()
	if len(hist) != 1 || hist[0].Task != 0 || hist[0].Fault.Kind != FaultPanic {
		t.Fatalf("fault history: got %+v", hist)
	}
}

// TestRestartWakesBlockedPeersWithDeadSentinel checks spec invariant 7:
// restarting a task recycles it in place and wakes every other task
// that was blocked talking to its previous generation with the
// dead-peer sentinel, combining their wake hints into one.
func TestRestartWakesBlockedPeersWithDeadSentinel(t *testing.T) {
	r := newRig(3)
	k := r.k

	// task1 blocks sending to task0; task2 is already AwaitingReplyFrom
	// task0 (simulate directly rather than driving a full rendezvous,
	// since only the wake behavior is under test here).
	r.setSend(1, k.Task(0).TaskID(), 1, taskOrigin(1), 0, 0, 0, 0, 0)
	if hint := k.Send(1); hint != Other() {
		t.Fatalf("setup Send: got %+v", hint)
	}
	k.Task(2).State.Sched = HealthyAwaitingReplyFrom(0)

	hint := k.Restart(0, &SimRegisters{})
	if hint != Other() {
		t.Fatalf("Restart wake hint: got %+v, want Other() (two distinct tasks woken)", hint)
	}
	if k.Task(1).State.Sched != HealthyRunnable() || r.regs[1].Rets[0] != DeadResponseCode {
		t.Fatalf("blocked sender not woken with dead sentinel: sched=%+v code=0x%X", k.Task(1).State.Sched, r.regs[1].Rets[0])
	}
	if k.Task(2).State.Sched != HealthyRunnable() || r.regs[2].Rets[0] != DeadResponseCode {
		t.Fatalf("blocked replier-waiter not woken with dead sentinel: sched=%+v code=0x%X", k.Task(2).State.Sched, r.regs[2].Rets[0])
	}
	if k.Task(0).Generation != 1 {
		t.Fatalf("restarted task generation: got %d, want 1", k.Task(0).Generation)
	}
	if k.Task(0).State.Sched != HealthyRunnable() {
		t.Fatalf("restarted task should be Runnable (StartAtBoot): got %+v", k.Task(0).State.Sched)
	}
}

// TestDoubleFaultRetainsOriginalPriorSched checks that a second fault on
// an already-faulted task replaces the fault reason but keeps the
// PriorSched recorded by the first fault.
func TestDoubleFaultRetainsOriginalPriorSched(t *testing.T) {
	r := newRig(1)
	k := r.k
	k.Task(0).State.Sched = HealthyReceivingOpen()

	k.Fault(0, Fault{Kind: FaultSyscallUsage, Usage: UsageUnknownSyscall})
	first := k.Task(0).State.PriorSched
	k.Fault(0, Fault{Kind: FaultPanic, Message: "again"})

	if k.Task(0).State.PriorSched != first {
		t.Fatalf("PriorSched changed on double fault: got %+v, want %+v", k.Task(0).State.PriorSched, first)
	}
	if k.Task(0).State.Fault.Kind != FaultPanic {
		t.Fatalf("double fault did not record newest reason: got %+v", k.Task(0).State.Fault)
	}
}
