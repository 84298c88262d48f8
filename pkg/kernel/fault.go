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

// Fault forces the task at idx into the Faulted state and notifies the
// supervisor (spec §4.8). It returns Specific(idx) combined with the
// supervisor's wake hint (so Other when the supervisor was woken too),
// so callers don't have to remember to request a reschedule; PickNext
// never selects the faulted task itself.
func (k *Kernel) Fault(idx int, fault Fault) NextTask {
	t := k.Task(idx)
	if t == nil {
		return Same()
	}
	t.ForceFault(fault)
	k.recordFault(idx, t)
	k.warningf("task %d (gen %d) faulted: %+v", idx, t.Generation, fault)

	hint := k.notifySupervisor()
	return hint.Combine(Specific(idx))
}

// notifySupervisor posts the configured supervisor notification bit and
// returns a scheduling hint suggesting the supervisor run next if it was
// waiting for one.
func (k *Kernel) notifySupervisor() NextTask {
	sup := k.Task(k.supervisorTask)
	if sup == nil {
		return Same()
	}
	if sup.Post(k.supervisorBit) {
		return Specific(k.supervisorTask)
	}
	return Same()
}

// Restart recycles the task at idx in place (spec invariant 7 / §4.8
// "Restart semantics") and wakes every other task that was blocked
// talking to its previous generation with the dead-peer sentinel,
// combining their wake hints with the caller's own. entry rebuilds the
// task's saved register file at its configured entry point and initial
// stack; a board binds this to a real reset trampoline, tests and
// cmd/ksim bind it to a fresh SimRegisters.
func (k *Kernel) Restart(idx int, entry Registers) NextTask {
	t := k.Task(idx)
	if t == nil {
		return Same()
	}
	t.Restart(entry)

	hint := Same()
	for i, other := range k.tasks {
		if other == nil || i == idx || other.State.IsFaulted {
			continue
		}
		switch other.State.Sched.Kind {
		case SendingTo:
			if other.State.Sched.Peer == idx {
				setSendResult(other.Regs, DeadResponseCode, 0)
				other.State.Sched = HealthyRunnable()
				hint = hint.Combine(Specific(i))
			}
		case AwaitingReplyFrom:
			if other.State.Sched.Peer == idx {
				setSendResult(other.Regs, DeadResponseCode, 0)
				other.State.Sched = HealthyRunnable()
				hint = hint.Combine(Specific(i))
			}
		}
	}
	return hint
}
