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

// leaseSize is the on-the-wire size, in bytes, of one Lease record in a
// task's lease table: attrs (u32) + base (u32) + length (u32).
const leaseSize = 12

// maxLeases bounds the number of leases a single SEND may publish. A
// lease table whose length would exceed this, or overflow when
// multiplied by leaseSize, faults the sender (spec §4.4 edge cases).
const maxLeases = 32

// Lease is one entry of a sender's lease table, valid only for the
// duration of a single SEND rendezvous (spec §3 "Lease record").
type Lease struct {
	Attrs  Attrs
	Base   uint32
	Length uint32
}

// BorrowStatus is the result code returned by BORROW_INFO/BORROW_READ/
// BORROW_WRITE, distinct from the response-code space used by
// REPLY/REPLY_FAULT.
type BorrowStatus uint32

const (
	// BorrowOK indicates the borrow succeeded.
	BorrowOK BorrowStatus = 0
	// BorrowNoSuchLease indicates the requested lease index does not
	// exist in the sender's published lease table.
	BorrowNoSuchLease BorrowStatus = 1
	// BorrowBadAttrs indicates the lease lacks the attribute the borrow
	// requires (READ for BORROW_READ, WRITE for BORROW_WRITE).
	BorrowBadAttrs BorrowStatus = 2
	// BorrowOutOfRange indicates the offset lies past the end of the
	// lease. A length reaching past the end is clamped, not rejected.
	BorrowOutOfRange BorrowStatus = 3
	// BorrowNotAwaitingReply indicates the caller attempted to borrow
	// from a task that is not currently AwaitingReplyFrom it.
	BorrowNotAwaitingReply BorrowStatus = 4
	// BorrowPeerDied indicates the sender whose lease was being
	// borrowed from faulted (and therefore died, from the borrower's
	// point of view) during validation.
	BorrowPeerDied BorrowStatus = 5
)

// decodeLease decodes one Lease record from its leaseSize-byte wire form
// (attrs, base, length, each a little-endian u32). It performs no
// validation of its own; Kernel.lookupLease checks the record's address
// against the lender's regions before reading the bytes it passes here.
func decodeLease(b []byte) Lease {
	return Lease{
		Attrs:  Attrs(leUint32(b[0:4])),
		Base:   leUint32(b[4:8]),
		Length: leUint32(b[8:12]),
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
