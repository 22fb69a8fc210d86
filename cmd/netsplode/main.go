// netsplode is a small companion CLI to the netsplode library: it
// resets an established TCP conversation from outside the process that
// owns it, tcpkill-style, and probes whether the current context can
// capture packets at all.
package main

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"time"

	"github.com/JustinTArthur/netsplode"
	"github.com/JustinTArthur/netsplode/capture"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/spf13/cobra"
	"gvisor.dev/gvisor/pkg/tcpip/header"
)

func main() {
	root := &cobra.Command{
		Use:           "netsplode",
		Short:         "Force TCP connections into a reset state.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(probeCmd(), killCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report whether packet capture is possible in this context.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !capture.System().Available() {
				return fmt.Errorf("packet capture unavailable (insufficient privilege?)")
			}
			fmt.Println("packet capture available")
			return nil
		},
	}
}

func killCmd() *cobra.Command {
	var (
		local    string
		remote   string
		timeout  time.Duration
		severity int
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Reset the TCP conversation between two endpoints by RST injection.",
		Long: `Capture one in-flight packet of the conversation between --local and
--remote and inject forged RST packets built from it. Requires traffic
to be flowing: an idle conversation yields nothing to capture.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			laddr, err := netip.ParseAddrPort(local)
			if err != nil {
				return fmt.Errorf("--local: %w", err)
			}
			raddr, err := netip.ParseAddrPort(remote)
			if err != nil {
				return fmt.Errorf("--remote: %w", err)
			}

			sys := capture.System()
			frame, err := sys.One(capture.Conversation{Peer1: laddr, Peer2: raddr}, timeout)
			if err != nil {
				return err
			}
			if frame == nil {
				return fmt.Errorf("no packet of %s <-> %s observed within %s", laddr, raddr, timeout)
			}
			if verbose {
				fmt.Println(decode(frame))
			}

			opts := []netsplode.Option{netsplode.Severity(severity)}
			if verbose {
				opts = append(opts, netsplode.WithLogger(
					slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})),
				))
			}
			return netsplode.ResetFrame(frame, opts...)
		},
	}

	cmd.Flags().StringVar(&local, "local", "", "One endpoint of the conversation, host:port.")
	cmd.Flags().StringVar(&remote, "remote", "", "The other endpoint, host:port.")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for a packet to show up.")
	cmd.Flags().IntVar(&severity, "severity", 50, "Number of forged RSTs to inject, sweeping the sequence number by the captured window size.")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the captured packet and injection details.")
	cobra.CheckErr(cmd.MarkFlagRequired("local"))
	cobra.CheckErr(cmd.MarkFlagRequired("remote"))

	return cmd
}

func decode(frame []byte) gopacket.Packet {
	first := layers.LayerTypeIPv4
	if header.IPVersion(frame) == 6 {
		first = layers.LayerTypeIPv6
	}
	return gopacket.NewPacket(frame, first, gopacket.Default)
}
