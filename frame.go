package netsplode

import (
	"github.com/pkg/errors"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

// teardownFlags mark a stream that is already opening or closing; a
// forged RST would only race the natural teardown.
const teardownFlags = header.TCPFlagFin | header.TCPFlagRst | header.TCPFlagSyn

// forgeReset builds a reply-direction RST for the TCP stream the
// captured IP frame belongs to: source and destination IPs swapped,
// ports swapped, flags RST only, sequence number taken from the captured
// acknowledgment number. It also returns the captured frame's advertised
// window size, the unit of the injection sweep.
//
// ok is false, with a nil error, when the captured frame already carries
// FIN, RST, or SYN.
func forgeReset(frame []byte) (forged []byte, window uint16, ok bool, err error) {
	switch header.IPVersion(frame) {
	case 4:
		if len(frame) < header.IPv4MinimumSize {
			return nil, 0, false, errors.Errorf("truncated ip frame, %d bytes", len(frame))
		}
		iphdr := header.IPv4(frame)
		hdrlen := int(iphdr.HeaderLength())
		if iphdr.TransportProtocol() != header.TCPProtocolNumber ||
			len(frame) < hdrlen+header.TCPMinimumSize {
			return nil, 0, false, errors.Errorf("not a tcp frame, %d bytes", len(frame))
		}
		tcphdr := header.TCP(frame[hdrlen:])
		if tcphdr.Flags()&teardownFlags != 0 {
			return nil, 0, false, nil
		}
		return forgeReset4(iphdr, tcphdr), tcphdr.WindowSize(), true, nil
	case 6:
		if len(frame) < header.IPv6MinimumSize+header.TCPMinimumSize {
			return nil, 0, false, errors.Errorf("truncated ip frame, %d bytes", len(frame))
		}
		iphdr := header.IPv6(frame)
		if iphdr.TransportProtocol() != header.TCPProtocolNumber {
			return nil, 0, false, errors.Errorf("not a tcp frame, %d bytes", len(frame))
		}
		tcphdr := header.TCP(frame[header.IPv6MinimumSize:])
		if tcphdr.Flags()&teardownFlags != 0 {
			return nil, 0, false, nil
		}
		return forgeReset6(iphdr, tcphdr), tcphdr.WindowSize(), true, nil
	default:
		return nil, 0, false, errors.Errorf("invalid ip frame, %d bytes", len(frame))
	}
}

func forgeReset4(src header.IPv4, tcp header.TCP) []byte {
	b := make([]byte, header.IPv4MinimumSize+header.TCPMinimumSize)
	iphdr := header.IPv4(b)
	iphdr.Encode(&header.IPv4Fields{
		TotalLength: uint16(len(b)),
		TTL:         64,
		Protocol:    uint8(header.TCPProtocolNumber),
		SrcAddr:     src.DestinationAddress(),
		DstAddr:     src.SourceAddress(),
	})
	iphdr.SetChecksum(^iphdr.CalculateChecksum())

	encodeReset(header.TCP(b[header.IPv4MinimumSize:]), tcp)
	setSeq(b, tcp.AckNumber())
	return b
}

func forgeReset6(src header.IPv6, tcp header.TCP) []byte {
	b := make([]byte, header.IPv6MinimumSize+header.TCPMinimumSize)
	iphdr := header.IPv6(b)
	iphdr.Encode(&header.IPv6Fields{
		PayloadLength:     header.TCPMinimumSize,
		TransportProtocol: header.TCPProtocolNumber,
		HopLimit:          64,
		SrcAddr:           src.DestinationAddress(),
		DstAddr:           src.SourceAddress(),
	})

	encodeReset(header.TCP(b[header.IPv6MinimumSize:]), tcp)
	setSeq(b, tcp.AckNumber())
	return b
}

func encodeReset(dst header.TCP, captured header.TCP) {
	dst.Encode(&header.TCPFields{
		SrcPort:    captured.DestinationPort(),
		DstPort:    captured.SourcePort(),
		SeqNum:     captured.AckNumber(),
		DataOffset: header.TCPMinimumSize,
		Flags:      header.TCPFlagRst,
		WindowSize: 0,
	})
}

// setSeq rewrites the forged frame's sequence number and fixes up the
// TCP checksum. The frame must be one built by forgeReset (minimal
// headers, no payload).
func setSeq(forged []byte, seq uint32) {
	var src, dst tcpip.Address
	var tcphdr header.TCP
	if header.IPVersion(forged) == 4 {
		iphdr := header.IPv4(forged)
		src, dst = iphdr.SourceAddress(), iphdr.DestinationAddress()
		tcphdr = header.TCP(forged[header.IPv4MinimumSize:])
	} else {
		iphdr := header.IPv6(forged)
		src, dst = iphdr.SourceAddress(), iphdr.DestinationAddress()
		tcphdr = header.TCP(forged[header.IPv6MinimumSize:])
	}

	tcphdr.SetSequenceNumber(seq)
	tcphdr.SetChecksum(0)
	sum := header.PseudoHeaderChecksum(header.TCPProtocolNumber, src, dst, uint16(len(tcphdr)))
	tcphdr.SetChecksum(^checksum.Checksum(tcphdr, sum))
}

func transportHeader(forged []byte) header.TCP {
	if header.IPVersion(forged) == 4 {
		return header.TCP(forged[header.IPv4MinimumSize:])
	}
	return header.TCP(forged[header.IPv6MinimumSize:])
}
