package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// protocolICMP is the IANA protocol number for ICMPv4.
const protocolICMP = 1

// ICMPProber sends one ICMP echo request itself instead of running ping.
//
// By default it uses an unprivileged datagram ICMP socket ("udp4"), which on
// Linux requires the process group to be within net.ipv4.ping_group_range.
// A privileged prober opens a raw socket ("ip4:icmp") and needs CAP_NET_RAW.
type ICMPProber struct {
	network    string
	privileged bool
	id         int
	seq        atomic.Uint32
	logger     Logger
}

// NewICMPProber creates an ICMP echo prober.
func NewICMPProber(privileged bool) *ICMPProber {
	network := "udp4"
	if privileged {
		network = "ip4:icmp"
	}
	return &ICMPProber{
		network:    network,
		privileged: privileged,
		id:         os.Getpid() & 0xffff,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the prober.
func (p *ICMPProber) SetLogger(logger Logger) {
	p.logger = logger
}

// Probe implements Prober.
func (p *ICMPProber) Probe(ctx context.Context, address string, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.echo(ctx, address); err != nil {
		p.logger.Debug("icmp probe failed", "address", address, "error", err)
		return false
	}
	return true
}

func (p *ICMPProber) echo(ctx context.Context, address string) error {
	ip, err := resolveIPv4(ctx, address)
	if err != nil {
		return err
	}

	conn, err := icmp.ListenPacket(p.network, "0.0.0.0")
	if err != nil {
		return fmt.Errorf("opening %s socket: %w", p.network, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting deadline: %w", err)
	}
	// Unblock the read early if the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now()) //nolint:errcheck // Best effort wake-up
	})
	defer stop()

	seq := int(p.seq.Add(1) & 0xffff)
	req, err := p.request(seq)
	if err != nil {
		return err
	}

	var dst net.Addr = &net.IPAddr{IP: ip}
	if !p.privileged {
		dst = &net.UDPAddr{IP: ip}
	}
	if _, err := conn.WriteTo(req, dst); err != nil {
		return fmt.Errorf("sending echo: %w", err)
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("reading reply: %w", err)
		}
		if p.isReply(buf[:n], peerIP(peer), ip, seq) {
			return nil
		}
	}
}

// request encodes an echo request carrying seq.
func (p *ICMPProber) request(seq int) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.id,
			Seq:  seq,
			Data: []byte("netwatch"),
		},
	}
	return msg.Marshal(nil)
}

// isReply reports whether b is the echo reply to our request. Datagram
// sockets rewrite the identifier, so only raw sockets compare it.
func (p *ICMPProber) isReply(b []byte, from, target net.IP, seq int) bool {
	if from != nil && !from.Equal(target) {
		return false
	}
	msg, err := icmp.ParseMessage(protocolICMP, b)
	if err != nil || msg.Type != ipv4.ICMPTypeEchoReply {
		return false
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok || echo.Seq != seq {
		return false
	}
	return !p.privileged || echo.ID == p.id
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	default:
		return nil
	}
}

var errNoIPv4 = errors.New("no IPv4 address")

// resolveIPv4 returns the first IPv4 address for host, which may already be
// an IP literal.
func resolveIPv4(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("%s: %w", host, errNoIPv4)
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", host, errNoIPv4)
}
