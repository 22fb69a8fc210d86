package capture

import (
	"golang.org/x/net/bpf"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// filterConversationPorts builds a classic BPF program accepting TCP
// frames whose port pair matches (port1, port2) in either direction. The
// program expects frames starting at the IP header (cooked socket).
//
// The kernel filter only has to shed unrelated traffic; exact 4-tuple
// verification of the surviving frames happens in userspace, where
// address comparison is not contorted by BPF's jump encoding.
func filterConversationPorts(port1, port2 uint16) []bpf.Instruction {
	const tcpProto = uint32(header.TCPProtocolNumber)
	return []bpf.Instruction{
		// load ip version to A
		bpf.LoadAbsolute{Off: 0, Size: 1},
		bpf.ALUOpConstant{Op: bpf.ALUOpShiftRight, Val: 4},

		// ipv4: store header length in X, require proto tcp
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 4, SkipFalse: 4},
		bpf.LoadMemShift{Off: 0},
		bpf.LoadAbsolute{Off: 9, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: tcpProto, SkipTrue: 5},
		bpf.RetConstant{Val: 0},

		// ipv6: fixed 40 byte header, require next header tcp
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: 6, SkipFalse: 11},
		bpf.LoadConstant{Dst: bpf.RegX, Val: 40},
		bpf.LoadAbsolute{Off: header.IPv6NextHeaderOffset, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: tcpProto, SkipFalse: 8},

		// ports, direction port1 -> port2
		bpf.LoadIndirect{Off: 0, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(port1), SkipFalse: 2},
		bpf.LoadIndirect{Off: 2, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(port2), SkipTrue: 5},

		// ports, direction port2 -> port1
		bpf.LoadIndirect{Off: 0, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(port2), SkipFalse: 2},
		bpf.LoadIndirect{Off: 2, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(port1), SkipTrue: 1},

		bpf.RetConstant{Val: 0},
		bpf.RetConstant{Val: 0xffff},
	}
}
