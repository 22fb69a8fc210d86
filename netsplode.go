// Package netsplode forces live TCP connections into a reset or aborted
// state, so test harnesses can exercise a peer's handling of unexpected
// connection loss.
//
// Two strategies exist. An abortive close configures the socket to
// discard unsent data on close, which makes the local stack emit RST
// instead of FIN. RST injection captures one in-flight frame of the
// conversation and transmits forged RST packets that appear to come from
// the genuine remote endpoint, terminating the stream from outside the
// socket API. [Reset] picks between them; [ResetPeers] and [ResetFrame]
// expose the injection path directly.
//
// Tracking connections as they are established and resetting them in
// bulk is handled by the tracker subpackage.
package netsplode

import (
	"log/slog"
	"net/netip"
	"time"

	"github.com/JustinTArthur/netsplode/capture"
	"github.com/JustinTArthur/netsplode/errorx"
)

// Reset takes a connection-like object (a socket, a TLS wrapper, or any
// supported stream adapter, see [Socketer]) and forces the underlying
// stream to undergo a real or simulated connection drop, resulting in a
// reset.
//
// Objects the resolver cannot map to a socket are skipped silently; that
// tolerance keeps batch resets best-effort. Resetting a socket that never
// connected is misuse and returns an error.
func Reset(connection any, opts ...Option) error {
	cfg := Options(opts...)
	if !cfg.Blocking {
		go func() {
			// The caller never observes the outcome of a detached reset.
			if err := reset(connection, cfg); err != nil && cfg.Logger != nil {
				cfg.Logger.Error("detached reset failed", errorx.TraceAttr(err))
			}
		}()
		return nil
	}
	return reset(connection, cfg)
}

func reset(connection any, cfg *Config) error {
	if cfg.Delay > 0 {
		time.Sleep(cfg.Delay)
	}

	sock, ok := resolveSocket(connection)
	if !ok {
		return nil
	}

	if cfg.UseAbortiveClose != nil && *cfg.UseAbortiveClose {
		return abortiveClose(sock)
	}
	fallback := cfg.UseAbortiveClose == nil
	if fallback && !cfg.Capture.Available() {
		if cfg.Logger != nil {
			cfg.Logger.Debug("packet capture unavailable, closing abortively")
		}
		return abortiveClose(sock)
	}

	if !isTCP(sock) {
		// RST injection only makes sense for TCP.
		if fallback {
			return abortiveClose(sock)
		}
		return nil
	}

	local, remote, err := peers(sock)
	if err != nil {
		return err
	}
	injected, err := resetPeers(local, remote, cfg)
	if err != nil {
		return err
	}
	if !injected && fallback {
		return abortiveClose(sock)
	}
	return nil
}

// ResetPeers captures one in-flight frame of the TCP conversation between
// local and remote, bounded by the fallback timeout, and injects forged
// RSTs built from it. It reports whether a frame was captured and
// injection was attempted; false with a nil error means no matching
// traffic was observed in time, which is a normal outcome. Injection
// success does not guarantee the peer accepted a RST.
func ResetPeers(local, remote netip.AddrPort, opts ...Option) (bool, error) {
	return resetPeers(local, remote, Options(opts...))
}

func resetPeers(local, remote netip.AddrPort, cfg *Config) (bool, error) {
	conv := capture.Conversation{Peer1: local, Peer2: remote}
	if cfg.Logger != nil {
		cfg.Logger.Debug("capturing conversation frame",
			slog.String("peer1", local.String()),
			slog.String("peer2", remote.String()),
			slog.Bool("loopback", conv.Loopback()))
	}
	frame, err := cfg.Capture.One(conv, cfg.FallbackTimeout)
	if err != nil {
		return false, err
	}
	if frame == nil {
		return false, nil
	}
	return true, resetFrame(frame, cfg)
}

// ResetFrame injects forged RSTs for the TCP stream the captured IP frame
// belongs to. The technique is based on tcpkill from Dug Song's dsniff
// toolkit: the forged packet travels in the reply direction of the
// captured one, with its sequence number taken from the captured
// acknowledgment number. A frame that already carries FIN, RST, or SYN
// results in a no-op, to avoid racing a natural teardown.
func ResetFrame(frame []byte, opts ...Option) error {
	return resetFrame(frame, Options(opts...))
}

func resetFrame(frame []byte, cfg *Config) error {
	forged, window, ok, err := forgeReset(frame)
	if err != nil {
		return err
	}
	if !ok {
		if cfg.Logger != nil {
			cfg.Logger.Debug("conversation already closing, leaving it alone")
		}
		return nil
	}

	// The exact sequence number the remote stack expects is unknown from
	// one observed frame; sweep by multiples of the advertised window to
	// cover the plausible acceptance range.
	base := transportHeader(forged).SequenceNumber()
	for i := 0; i < cfg.Severity; i++ {
		setSeq(forged, base+uint32(i)*uint32(window))
		if err := cfg.Capture.Send(forged); err != nil {
			if errorx.Temporary(err) {
				continue
			}
			return err
		}
	}
	return nil
}
