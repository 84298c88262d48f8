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

// SetTimer implements the SET_TIMER syscall (spec §4.6): a task arms (or
// disarms) its own one-shot deadline and the notification bits to post
// when it fires. There is one timer per task, not a list: a task
// wanting several deadlines multiplexes them itself against a single
// notification bit, exactly as it would multiplex several peers against
// one receive.
func (k *Kernel) SetTimer(caller int) NextTask {
	t := k.Task(caller)
	sta := setTimerArgs{t.Regs}

	if sta.enabled() {
		t.Timer = TimerState{Deadline: sta.deadline(), HasDeadline: true, ToPost: sta.bits()}
	} else {
		t.Timer = TimerState{}
	}
	return Same()
}

// Tick advances the kernel's notion of time to now and fires every
// armed timer whose deadline has passed (spec §4.6 "timer wheel"). A
// fired timer is one-shot: HasDeadline clears and the owning task must
// call SET_TIMER again to rearm it. Tick is driven by the board's
// systick handler, once per tick, the same way HandleIRQ is driven by
// the NVIC (not a syscall, but bound by the same non-reentrant
// discipline as every other engine entry point).
func (k *Kernel) Tick(now uint64) NextTask {
	k.now = now

	hint := Same()
	for i, t := range k.tasks {
		if t == nil || !t.Timer.HasDeadline || t.Timer.Deadline > now {
			continue
		}
		t.Timer.HasDeadline = false
		if t.Post(t.Timer.ToPost) {
			hint = hint.Combine(Specific(i))
		}
	}
	return hint
}
