package test

import (
	"net/netip"
	"testing"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// TCPFrame builds a checksummed IP+TCP frame from src to dst. The IP
// version follows the source address.
func TCPFrame(t *testing.T, src, dst netip.AddrPort, flags header.TCPFlags, seq, ack uint32, window uint16, payload []byte) []byte {
	t.Helper()
	if src.Addr().Is4() {
		return tcp4Frame(src, dst, flags, seq, ack, window, payload)
	}
	return tcp6Frame(src, dst, flags, seq, ack, window, payload)
}

func tcp4Frame(src, dst netip.AddrPort, flags header.TCPFlags, seq, ack uint32, window uint16, payload []byte) []byte {
	size := header.IPv4MinimumSize + header.TCPMinimumSize + len(payload)
	b := make([]byte, size)

	iphdr := header.IPv4(b)
	iphdr.Encode(&header.IPv4Fields{
		TotalLength: uint16(size),
		TTL:         64,
		Protocol:    uint8(header.TCPProtocolNumber),
		SrcAddr:     tcpip.AddrFrom4(src.Addr().As4()),
		DstAddr:     tcpip.AddrFrom4(dst.Addr().As4()),
	})
	iphdr.SetChecksum(^iphdr.CalculateChecksum())

	encodeTCP(b[header.IPv4MinimumSize:], src, dst, flags, seq, ack, window, payload)

	sum := header.PseudoHeaderChecksum(
		header.TCPProtocolNumber,
		iphdr.SourceAddress(), iphdr.DestinationAddress(),
		uint16(header.TCPMinimumSize+len(payload)),
	)
	tcphdr := header.TCP(b[header.IPv4MinimumSize:])
	tcphdr.SetChecksum(^checksum.Checksum(b[header.IPv4MinimumSize:], sum))
	return b
}

func tcp6Frame(src, dst netip.AddrPort, flags header.TCPFlags, seq, ack uint32, window uint16, payload []byte) []byte {
	size := header.IPv6MinimumSize + header.TCPMinimumSize + len(payload)
	b := make([]byte, size)

	iphdr := header.IPv6(b)
	iphdr.Encode(&header.IPv6Fields{
		PayloadLength:     uint16(header.TCPMinimumSize + len(payload)),
		TransportProtocol: header.TCPProtocolNumber,
		HopLimit:          64,
		SrcAddr:           tcpip.AddrFrom16(src.Addr().As16()),
		DstAddr:           tcpip.AddrFrom16(dst.Addr().As16()),
	})

	encodeTCP(b[header.IPv6MinimumSize:], src, dst, flags, seq, ack, window, payload)

	sum := header.PseudoHeaderChecksum(
		header.TCPProtocolNumber,
		iphdr.SourceAddress(), iphdr.DestinationAddress(),
		uint16(header.TCPMinimumSize+len(payload)),
	)
	tcphdr := header.TCP(b[header.IPv6MinimumSize:])
	tcphdr.SetChecksum(^checksum.Checksum(b[header.IPv6MinimumSize:], sum))
	return b
}

func encodeTCP(b []byte, src, dst netip.AddrPort, flags header.TCPFlags, seq, ack uint32, window uint16, payload []byte) {
	tcphdr := header.TCP(b)
	tcphdr.Encode(&header.TCPFields{
		SrcPort:    src.Port(),
		DstPort:    dst.Port(),
		SeqNum:     seq,
		AckNum:     ack,
		DataOffset: header.TCPMinimumSize,
		Flags:      flags,
		WindowSize: window,
	})
	copy(b[header.TCPMinimumSize:], payload)
}
