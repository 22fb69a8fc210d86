//go:build linux
// +build linux

package capture

import (
	"encoding/binary"
	"net"
	"net/netip"
	"time"
	"unsafe"

	"github.com/JustinTArthur/netsplode/errorx"
	"github.com/pkg/errors"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

type system struct{}

// System returns the platform capturer: an AF_PACKET cooked socket with
// an attached classic BPF conversation filter for capturing, and raw IP
// sockets for transmission. The kernel leaves a supplied IP header
// intact on the raw send path, so forged source addresses survive.
func System() Capturer { return system{} }

func (system) Available() bool {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return false
	}
	unix.Close(fd)
	return true
}

func (system) One(conv Conversation, timeout time.Duration) ([]byte, error) {
	fd, err := unix.Socket(
		unix.AF_PACKET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC,
		int(htons(unix.ETH_P_ALL)),
	)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer unix.Close(fd)

	err = attachFilter(fd, filterConversationPorts(conv.Peer1.Port(), conv.Peer2.Port()))
	if err != nil {
		return nil, err
	}
	if conv.Loopback() {
		ifi, err := loopbackInterface()
		if err != nil {
			return nil, err
		}
		err = unix.Bind(fd, &unix.SockaddrLinklayer{
			Protocol: htons(unix.ETH_P_ALL),
			Ifindex:  ifi,
		})
		if err != nil {
			return nil, errors.WithStack(err)
		}
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	var b = make([]byte, 65536)
	for {
		if !deadline.IsZero() {
			remain := time.Until(deadline)
			if remain <= 0 {
				return nil, nil
			}
			tv := unix.NsecToTimeval(remain.Nanoseconds())
			err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
			if err != nil {
				return nil, errors.WithStack(err)
			}
		}

		n, _, err := unix.Recvfrom(fd, b, 0)
		if err != nil {
			if errorx.Temporary(recvErr(err)) {
				continue
			}
			return nil, errors.WithStack(err)
		}
		if frame := matchFrame(conv, b[:n]); frame != nil {
			return frame, nil
		}
	}
}

// recvErr classifies recv failures: interrupted or timed-out reads are
// retried within the deadline, everything else aborts the capture.
func recvErr(err error) error {
	switch {
	case errors.Is(err, unix.EINTR),
		errors.Is(err, unix.EAGAIN),
		errors.Is(err, unix.EWOULDBLOCK):
		return errorx.WrapTemp(err)
	default:
		return err
	}
}

// matchFrame verifies a candidate against the full 4-tuple; the kernel
// filter only matched protocol and ports. Returns a caller-owned copy,
// the receive buffer is reused.
func matchFrame(conv Conversation, b []byte) []byte {
	var src, dst netip.AddrPort
	switch header.IPVersion(b) {
	case 4:
		if len(b) < header.IPv4MinimumSize {
			return nil
		}
		iphdr := header.IPv4(b)
		hdrlen := int(iphdr.HeaderLength())
		if iphdr.TransportProtocol() != header.TCPProtocolNumber ||
			len(b) < hdrlen+header.TCPMinimumSize {
			return nil
		}
		tcphdr := header.TCP(b[hdrlen:])
		src = netip.AddrPortFrom(netip.AddrFrom4(iphdr.SourceAddress().As4()), tcphdr.SourcePort())
		dst = netip.AddrPortFrom(netip.AddrFrom4(iphdr.DestinationAddress().As4()), tcphdr.DestinationPort())
	case 6:
		if len(b) < header.IPv6MinimumSize+header.TCPMinimumSize {
			return nil
		}
		iphdr := header.IPv6(b)
		if iphdr.TransportProtocol() != header.TCPProtocolNumber {
			return nil
		}
		tcphdr := header.TCP(b[header.IPv6MinimumSize:])
		src = netip.AddrPortFrom(netip.AddrFrom16(iphdr.SourceAddress().As16()), tcphdr.SourcePort())
		dst = netip.AddrPortFrom(netip.AddrFrom16(iphdr.DestinationAddress().As16()), tcphdr.DestinationPort())
	default:
		return nil
	}

	if !conv.match(src, dst) {
		return nil
	}
	frame := make([]byte, len(b))
	copy(frame, b)
	return frame
}

func (system) Send(frame []byte) error {
	switch header.IPVersion(frame) {
	case 4:
		fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.IPPROTO_RAW)
		if err != nil {
			return errors.WithStack(err)
		}
		defer unix.Close(fd)

		dst := header.IPv4(frame).DestinationAddress()
		return sendErr(unix.Sendto(fd, frame, 0, &unix.SockaddrInet4{Addr: dst.As4()}))
	case 6:
		fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.IPPROTO_RAW)
		if err != nil {
			return errors.WithStack(err)
		}
		defer unix.Close(fd)

		if err := unix.SetsockoptInt(fd, unix.SOL_IPV6, unix.IPV6_HDRINCL, 1); err != nil {
			return errors.WithStack(err)
		}
		dst := header.IPv6(frame).DestinationAddress()
		return sendErr(unix.Sendto(fd, frame, 0, &unix.SockaddrInet6{Addr: dst.As16()}))
	default:
		return errors.Errorf("invalid ip frame, %d bytes", len(frame))
	}
}

// sendErr wraps transient transmit failures so callers sweeping many
// forged frames can skip an attempt instead of aborting the sweep.
func sendErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ENOBUFS), errors.Is(err, unix.EAGAIN):
		return errorx.WrapTemp(errors.WithStack(err))
	default:
		return errors.WithStack(err)
	}
}

func attachFilter(fd int, ins []bpf.Instruction) error {
	rawIns, err := bpf.Assemble(ins)
	if err != nil {
		return errors.WithStack(err)
	}
	prog := &unix.SockFprog{
		Len:    uint16(len(rawIns)),
		Filter: (*unix.SockFilter)(unsafe.Pointer(&rawIns[0])),
	}
	return errors.WithStack(unix.SetsockoptSockFprog(
		fd, unix.SOL_SOCKET, unix.SO_ATTACH_FILTER, prog,
	))
}

func loopbackInterface() (int, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	for _, ifi := range ifs {
		if ifi.Flags&net.FlagLoopback != 0 && ifi.Flags&net.FlagUp != 0 {
			return ifi.Index, nil
		}
	}
	return 0, errors.New("no loopback interface is up")
}

func htons(v uint16) uint16 {
	return binary.BigEndian.Uint16(
		binary.NativeEndian.AppendUint16(nil, v),
	)
}
