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

type trackingNVIC struct {
	masked map[int]bool
}

func (n *trackingNVIC) Mask(irq int)   { n.masked[irq] = true }
func (n *trackingNVIC) Unmask(irq int) { n.masked[irq] = false }

func withIRQs(r *testRig, nvic *trackingNVIC, irqs []IRQBinding) {
	r.k.nvic = nvic
	r.k.irqs = irqs
	r.k.irqIndexByNum = make(map[int]int, len(irqs))
	for i, b := range irqs {
		r.k.irqIndexByNum[b.IRQ] = i
	}
}

// TestHandleIRQMasksAndWakesOwner checks that a firing interrupt masks
// itself at the NVIC, posts its bound notification to its owning task,
// and proposes a switch if that task was waiting for it.
func TestHandleIRQMasksAndWakesOwner(t *testing.T) {
	r := newRig(2)
	nvic := &trackingNVIC{masked: map[int]bool{}}
	withIRQs(r, nvic, []IRQBinding{{IRQ: 5, Task: 1, Notification: 0b1}})

	r.setReceiveOpen(1, taskOrigin(1), 64)
	r.k.Receive(1)
	r.k.Task(1).Mask = 0b1

	hint := r.k.HandleIRQ(5)
	if hint != Specific(1) {
		t.Fatalf("HandleIRQ: got %+v, want Specific(1)", hint)
	}
	if !nvic.masked[5] {
		t.Fatalf("IRQ 5 not masked after firing")
	}
	if pending := r.k.PendingIRQs(); len(pending) != 1 || pending[0] != 5 {
		t.Fatalf("PendingIRQs: got %v, want [5]", pending)
	}
}

// TestIRQControlUnmasksOwnedBindings checks that IRQ_CONTROL unmasks
// every binding the caller owns whose notification bit the mask names,
// and clears it from the pending set.
func TestIRQControlUnmasksOwnedBindings(t *testing.T) {
	r := newRig(2)
	nvic := &trackingNVIC{masked: map[int]bool{}}
	withIRQs(r, nvic, []IRQBinding{{IRQ: 5, Task: 1, Notification: 0b1}})
	r.k.HandleIRQ(5)

	reg := r.regs[1]
	reg.Args[0] = 0b1 // mask
	reg.Args[1] = 1   // enable
	hint := r.k.IRQControl(1)
	if hint != Same() {
		t.Fatalf("IRQControl: got %+v, want Same()", hint)
	}
	if nvic.masked[5] {
		t.Fatalf("IRQ 5 still masked after IRQ_CONTROL enable")
	}
	if pending := r.k.PendingIRQs(); len(pending) != 0 {
		t.Fatalf("PendingIRQs after re-enable: got %v, want none", pending)
	}
}

// TestIRQControlFaultsOnUnmappedMask checks spec §4.7: a caller naming
// mask bits that match no IRQ binding it owns is misuse, not a no-op.
func TestIRQControlFaultsOnUnmappedMask(t *testing.T) {
	r := newRig(2)
	nvic := &trackingNVIC{masked: map[int]bool{}}
	withIRQs(r, nvic, []IRQBinding{{IRQ: 5, Task: 1, Notification: 0b1}})

	reg := r.regs[1]
	reg.Args[0] = 0b10 // no binding owned by task 1 uses this bit
	reg.Args[1] = 1

	r.k.IRQControl(1)
	if !r.k.Task(1).State.IsFaulted || r.k.Task(1).State.Fault.Usage != UsageBadIRQMask {
		t.Fatalf("caller state after bad IRQ mask: got %+v", r.k.Task(1).State)
	}
}
