package netsplode

import (
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"
	"gvisor.dev/gvisor/pkg/tcpip/header"

	"github.com/JustinTArthur/netsplode/internal/test"
)

func Test_forgeReset(t *testing.T) {
	var (
		client4 = netip.MustParseAddrPort("192.168.1.10:43210")
		server4 = netip.MustParseAddrPort("10.0.0.2:443")
		client6 = netip.MustParseAddrPort("[2001:db8::10]:43210")
		server6 = netip.MustParseAddrPort("[2001:db8::2]:443")
	)

	t.Run("ipv4", func(t *testing.T) {
		captured := test.TCPFrame(t, client4, server4,
			header.TCPFlagAck|header.TCPFlagPsh, 1000, 2000, 512, []byte("hello"))

		forged, window, ok, err := forgeReset(captured)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint16(512), window)
		require.Len(t, forged, header.IPv4MinimumSize+header.TCPMinimumSize)

		iphdr := header.IPv4(forged)
		require.Equal(t, server4.Addr().As4(), iphdr.SourceAddress().As4())
		require.Equal(t, client4.Addr().As4(), iphdr.DestinationAddress().As4())
		require.Equal(t, uint16(0xffff), iphdr.CalculateChecksum())

		tcphdr := header.TCP(forged[header.IPv4MinimumSize:])
		require.Equal(t, server4.Port(), tcphdr.SourcePort())
		require.Equal(t, client4.Port(), tcphdr.DestinationPort())
		require.Equal(t, header.TCPFlagRst, tcphdr.Flags())
		require.Equal(t, uint32(2000), tcphdr.SequenceNumber())
		requireValidTCPChecksum(t, forged)
	})

	t.Run("ipv6", func(t *testing.T) {
		captured := test.TCPFrame(t, client6, server6,
			header.TCPFlagAck, 7, 7700, 256, nil)

		forged, window, ok, err := forgeReset(captured)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint16(256), window)
		require.Len(t, forged, header.IPv6MinimumSize+header.TCPMinimumSize)

		iphdr := header.IPv6(forged)
		require.Equal(t, server6.Addr().As16(), iphdr.SourceAddress().As16())
		require.Equal(t, client6.Addr().As16(), iphdr.DestinationAddress().As16())

		tcphdr := header.TCP(forged[header.IPv6MinimumSize:])
		require.Equal(t, server6.Port(), tcphdr.SourcePort())
		require.Equal(t, client6.Port(), tcphdr.DestinationPort())
		require.Equal(t, header.TCPFlagRst, tcphdr.Flags())
		require.Equal(t, uint32(7700), tcphdr.SequenceNumber())
		requireValidTCPChecksum(t, forged)
	})

	t.Run("teardown traffic", func(t *testing.T) {
		for _, flags := range []header.TCPFlags{
			header.TCPFlagFin | header.TCPFlagAck,
			header.TCPFlagRst,
			header.TCPFlagSyn,
		} {
			captured := test.TCPFrame(t, client4, server4, flags, 1, 2, 128, nil)
			forged, _, ok, err := forgeReset(captured)
			require.NoError(t, err)
			require.False(t, ok)
			require.Nil(t, forged)
		}
	})

	t.Run("invalid frames", func(t *testing.T) {
		_, _, _, err := forgeReset(nil)
		require.Error(t, err)

		_, _, _, err = forgeReset([]byte{0x45, 0x00})
		require.Error(t, err)

		udp := test.TCPFrame(t, client4, server4, header.TCPFlagAck, 1, 2, 128, nil)
		udp[9] = uint8(header.UDPProtocolNumber)
		_, _, _, err = forgeReset(udp)
		require.Error(t, err)
	})
}

// The forged frame must decode cleanly with an independent parser.
func Test_forgeReset_gopacket(t *testing.T) {
	captured := test.TCPFrame(t,
		netip.MustParseAddrPort("192.168.1.10:43210"),
		netip.MustParseAddrPort("10.0.0.2:443"),
		header.TCPFlagAck, 3000, 4000, 1024, []byte("payload"))

	forged, _, ok, err := forgeReset(captured)
	require.NoError(t, err)
	require.True(t, ok)

	pkt := gopacket.NewPacket(forged, layers.LayerTypeIPv4, gopacket.Default)
	require.Nil(t, pkt.ErrorLayer())

	ip, _ := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.NotNil(t, ip)
	require.Equal(t, "10.0.0.2", ip.SrcIP.String())
	require.Equal(t, "192.168.1.10", ip.DstIP.String())

	tcp, _ := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	require.NotNil(t, tcp)
	require.True(t, tcp.RST)
	require.False(t, tcp.SYN)
	require.False(t, tcp.FIN)
	require.False(t, tcp.ACK)
	require.Equal(t, uint16(443), uint16(tcp.SrcPort))
	require.Equal(t, uint16(43210), uint16(tcp.DstPort))
	require.Equal(t, uint32(4000), tcp.Seq)
}

func Test_setSeq(t *testing.T) {
	captured := test.TCPFrame(t,
		netip.MustParseAddrPort("127.0.0.1:5000"),
		netip.MustParseAddrPort("127.0.0.1:6000"),
		header.TCPFlagAck, 10, 5555, 300, nil)

	forged, window, ok, err := forgeReset(captured)
	require.NoError(t, err)
	require.True(t, ok)

	base := transportHeader(forged).SequenceNumber()
	for i := 0; i < 4; i++ {
		setSeq(forged, base+uint32(i)*uint32(window))
		require.Equal(t, 5555+uint32(i)*300, transportHeader(forged).SequenceNumber())
		requireValidTCPChecksum(t, forged)
	}
}

// requireValidTCPChecksum folds the TCP segment with its pseudo header;
// a valid checksum sums to 0xffff.
func requireValidTCPChecksum(t *testing.T, frame []byte) {
	t.Helper()
	var sum uint16
	if header.IPVersion(frame) == 4 {
		iphdr := header.IPv4(frame)
		seg := frame[iphdr.HeaderLength():]
		sum = checksum.Checksum(seg, header.PseudoHeaderChecksum(
			header.TCPProtocolNumber,
			iphdr.SourceAddress(), iphdr.DestinationAddress(), uint16(len(seg))))
	} else {
		iphdr := header.IPv6(frame)
		seg := frame[header.IPv6MinimumSize:]
		sum = checksum.Checksum(seg, header.PseudoHeaderChecksum(
			header.TCPProtocolNumber,
			iphdr.SourceAddress(), iphdr.DestinationAddress(), uint16(len(seg))))
	}
	require.Equal(t, uint16(0xffff), sum)
}
