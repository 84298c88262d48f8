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

package supervisor

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff"
)

// fixedBackoff returns a constant interval every time, so tests don't
// depend on the real exponential curve's jitter.
type fixedBackoff struct{ d time.Duration }

func (f fixedBackoff) NextBackOff() time.Duration { return f.d }
func (f fixedBackoff) Reset()                     {}

func newTestPolicy(d time.Duration) *Policy {
	p := New(nil)
	p.NewBackoff = func() backoff.BackOff { return fixedBackoff{d: d} }
	return p
}

func TestObserveAllowsFirstFaultImmediately(t *testing.T) {
	p := newTestPolicy(time.Second)
	now := time.Unix(0, 0)
	if !p.Observe(0, 1, now) {
		t.Fatalf("first observed fault should be restartable immediately")
	}
}

func TestObserveWithholdsWithinBackoffWindow(t *testing.T) {
	p := newTestPolicy(time.Second)
	now := time.Unix(0, 0)
	p.Observe(0, 1, now)
	if p.Observe(0, 1, now.Add(100*time.Millisecond)) {
		t.Fatalf("fault within backoff window should not be restartable")
	}
	if !p.Observe(0, 1, now.Add(2*time.Second)) {
		t.Fatalf("fault past backoff window should be restartable")
	}
}

func TestObserveGivesUpAfterMaxConsecutiveFaults(t *testing.T) {
	p := newTestPolicy(0)
	p.MaxConsecutiveFaults = 3
	now := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		if !p.Observe(0, 1, now) {
			t.Fatalf("fault %d should still be within budget", i)
		}
	}
	if p.Observe(0, 1, now) {
		t.Fatalf("policy should have given up after exceeding MaxConsecutiveFaults")
	}
	if p.Observe(0, 1, now.Add(time.Hour)) {
		t.Fatalf("a given-up task should stay given up for its current generation")
	}
}

func TestRestartedResetsConsecutiveFaultCount(t *testing.T) {
	p := newTestPolicy(0)
	p.MaxConsecutiveFaults = 1
	now := time.Unix(0, 0)
	p.Observe(0, 1, now)
	if p.Observe(0, 1, now) {
		t.Fatalf("second consecutive fault at the same generation should exceed the budget of 1")
	}

	p.Restarted(0, 2)
	if !p.Observe(0, 2, now) {
		t.Fatalf("fault under a new generation after restart should get a fresh budget")
	}
}
