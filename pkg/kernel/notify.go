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

// PostNotification posts bits to the task at idx and returns the
// resulting scheduling hint. HandleIRQ, Tick and the fault path's
// supervisor notification are the sources pkg/kernel drives
// internally; this entry point exists for a board (or
// cmd/ksim) wanting to post a notification from outside either path,
// e.g. a host-simulated peripheral thread signaling its owning task
// directly rather than through a modeled NVIC line.
func (k *Kernel) PostNotification(idx int, bits NotificationSet) NextTask {
	t := k.Task(idx)
	if t == nil {
		return Same()
	}
	if t.Post(bits) {
		return Specific(idx)
	}
	return Same()
}
