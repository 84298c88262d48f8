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

package main

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/oxidecomputer/hubris-sub002/pkg/kernel"
	"github.com/oxidecomputer/hubris-sub002/pkg/klog"
)

// Simulator drives a pkg/kernel.Kernel on the host: a rate-limited tick
// source standing in for the board's SysTick, reprogramming each
// task's arena once at boot via its TaskLoader, and a running log of
// scheduling decisions. It has no notion of compiled task firmware
// (there is none to run on a host), so "running" a task here means
// tracking that the scheduler would hand it control, not executing any
// instructions on its behalf.
type Simulator struct {
	Kernel   *kernel.Kernel
	Loaders  []*TaskLoader
	TickHz   float64
	Log      klog.Logger
	current  int
	haveTask bool
}

// Boot programs every task's arena permissions once, the host
// equivalent of the real kernel's first MPU load at reset.
func (s *Simulator) Boot() {
	for i, l := range s.Loaders {
		if l == nil {
			continue
		}
		t := s.Kernel.Task(i)
		if t == nil {
			continue
		}
		l.Load(t.Regions)
	}
}

// Run drives the tick source until ctx is canceled, applying each
// tick's scheduling hint and logging task switches. The tick loop and a
// context-cancellation watcher run under one errgroup so a tick-loop error
// (there is none today, but rate.Limiter.Wait can fail on ctx
// cancellation) tears the whole simulated system down together rather
// than leaving a dangling goroutine.
func (s *Simulator) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Limit(s.TickHz), 1)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var tick uint64
		for {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			tick++
			hint := s.Kernel.Tick(tick)
			s.applyHint(hint)
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// applyHint resolves a scheduling hint against the task table and logs
// a switch, mirroring what a board's exception-return path would do
// with PickNext's result before reprogramming the MPU and resuming.
func (s *Simulator) applyHint(hint kernel.NextTask) {
	idx, ok := kernel.PickNext(s.taskSlice(), hint, s.current)
	if !ok {
		s.debugf("tick: no runnable task (idle)")
		return
	}
	if !s.haveTask || idx != s.current {
		s.debugf("switch: task %d -> %d", s.current, idx)
	}
	s.current = idx
	s.haveTask = true
}

func (s *Simulator) taskSlice() []*kernel.Task {
	out := make([]*kernel.Task, s.Kernel.NumTasks())
	for i := range out {
		out[i] = s.Kernel.Task(i)
	}
	return out
}

func (s *Simulator) debugf(format string, args ...any) {
	if s.Log != nil {
		s.Log.Debugf(format, args...)
	}
}
