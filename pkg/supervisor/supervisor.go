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

// Package supervisor implements a reference restart policy for the
// supervisor task pkg/kernel's fault handler notifies on every fault
// (spec §4.8: "[the supervisor] decides whether to restart the faulted
// task ... or leave it halted"). The kernel itself is deliberately
// silent on policy; this package is one opinionated answer a board can
// wire in as its actual supervisor task body, not part of the kernel
// core.
package supervisor

import (
	"time"

	"github.com/cenkalti/backoff"

	"github.com/oxidecomputer/hubris-sub002/pkg/kernel"
	"github.com/oxidecomputer/hubris-sub002/pkg/klog"
)

// Policy decides, per task, whether a fault should be followed by a
// restart or the task left halted for a human/debugger to inspect. A
// task that keeps re-faulting faster than its backoff allows is judged
// to be crash-looping and is left stopped rather than restarted forever.
// Restarts are tracked per task (not per process tree), driven by
// polling the kernel's fault history rather than child-exit channels.
type Policy struct {
	// NewBackoff constructs the per-task backoff clock. Defaults to
	// backoff.NewExponentialBackOff if nil.
	NewBackoff func() backoff.BackOff

	// MaxConsecutiveFaults bounds how many faults in a row (with no
	// intervening backoff-permitted restart) a task gets before the
	// policy gives up on it entirely and leaves it Stopped for good.
	MaxConsecutiveFaults int

	log klog.Logger

	state map[int]*taskState
}

type taskState struct {
	clock      backoff.BackOff
	next       time.Time
	faults     int
	giveUp     bool
	generation kernel.Generation
}

// New constructs a Policy. log may be nil.
func New(log klog.Logger) *Policy {
	return &Policy{
		MaxConsecutiveFaults: 8,
		log:                  log,
		state:                make(map[int]*taskState),
	}
}

func (p *Policy) backoffFor(idx int) backoff.BackOff {
	if p.NewBackoff != nil {
		return p.NewBackoff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0 // never stop retrying on its own; MaxConsecutiveFaults governs giving up
	return b
}

// Observe is called by the board's supervisor task body after it wakes
// on the configured supervisor notification bit, once per faulted task
// it finds in pkg/kernel.Kernel.FaultHistory since its last observation.
// now is the current tick, converted to wall-clock time by the caller
// (pkg/kernel itself has no notion of wall time; see SetTimer). It
// reports whether idx should be restarted now.
func (p *Policy) Observe(idx int, generation kernel.Generation, now time.Time) bool {
	st, ok := p.state[idx]
	if !ok || st.generation != generation {
		// Either the first fault we've seen for this task, or it was
		// already restarted since our last observation (new
		// generation): consecutive-fault bookkeeping resets.
		st = &taskState{clock: p.backoffFor(idx), generation: generation}
		p.state[idx] = st
	}

	if st.giveUp {
		return false
	}
	st.faults++
	if st.faults > p.MaxConsecutiveFaults {
		st.giveUp = true
		p.debugf("task %d: giving up after %d consecutive faults", idx, st.faults)
		return false
	}
	if now.Before(st.next) {
		p.debugf("task %d: fault %d, still within backoff window", idx, st.faults)
		return false
	}
	st.next = now.Add(st.clock.NextBackOff())
	return true
}

// Restarted tells the policy a restart actually happened, so its
// consecutive-fault counter resets for the new generation. Callers
// should invoke this after actually calling kernel.Kernel.Restart.
func (p *Policy) Restarted(idx int, newGeneration kernel.Generation) {
	p.state[idx] = &taskState{clock: p.backoffFor(idx), generation: newGeneration}
}

func (p *Policy) debugf(format string, args ...any) {
	if p.log != nil {
		p.log.Debugf(format, args...)
	}
}
