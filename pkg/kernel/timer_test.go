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

// TestSetTimerArmsAndTickFires checks the one-shot timer: SET_TIMER
// arms a deadline and notification bits, and Tick posts them exactly
// once the deadline has passed, clearing HasDeadline so a second Tick at
// the same or a later time does not re-fire it.
func TestSetTimerArmsAndTickFires(t *testing.T) {
	r := newRig(2)
	k := r.k

	r.setReceiveOpen(1, taskOrigin(1), 64)
	k.Receive(1)
	k.Task(1).Mask = 0b1

	reg := r.regs[1]
	reg.Args[0] = 1   // enabled
	reg.Args[1] = 100 // deadline low
	reg.Args[2] = 0   // deadline high
	reg.Args[3] = 0b1 // bits
	if hint := k.SetTimer(1); hint != Same() {
		t.Fatalf("SetTimer: got %+v", hint)
	}
	if !k.Task(1).Timer.HasDeadline || k.Task(1).Timer.Deadline != 100 {
		t.Fatalf("timer not armed: got %+v", k.Task(1).Timer)
	}

	if hint := k.Tick(50); hint != Same() {
		t.Fatalf("Tick before deadline: got %+v, want Same()", hint)
	}
	if !k.Task(1).Timer.HasDeadline {
		t.Fatalf("timer fired early")
	}

	hint := k.Tick(100)
	if hint != Specific(1) {
		t.Fatalf("Tick at deadline: got %+v, want Specific(1)", hint)
	}
	if k.Task(1).Timer.HasDeadline {
		t.Fatalf("timer did not clear after firing")
	}
	if k.Task(1).Notifications&0b1 == 0 {
		t.Fatalf("timer notification bits not posted")
	}

	k.Task(1).Notifications = 0
	if hint := k.Tick(200); hint != Same() {
		t.Fatalf("Tick after one-shot already fired: got %+v, want Same()", hint)
	}
}

// TestSetTimerDisarm checks that a disabled SET_TIMER clears any
// previously armed deadline.
func TestSetTimerDisarm(t *testing.T) {
	r := newRig(1)
	k := r.k
	k.Task(0).Timer = TimerState{Deadline: 10, HasDeadline: true, ToPost: 0b1}

	reg := r.regs[0]
	reg.Args[0] = 0 // disabled
	k.SetTimer(0)

	if k.Task(0).Timer.HasDeadline {
		t.Fatalf("timer still armed after disarm: got %+v", k.Task(0).Timer)
	}
}
