package artnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Haba1234/go-artnet/packet"

	"dmxpatch/internal/dmx"
	"dmxpatch/internal/logger"
)

const (
	// DefaultPort is the UDP port the Art-Net protocol reserves.
	DefaultPort = 6454

	// readTimeout bounds a single blocking read so the receive loop can
	// notice context cancellation.
	readTimeout = 100 * time.Millisecond
)

// Config selects where the transport binds and where frames go.
type Config struct {
	// LocalAddress is the bind IP. Empty binds all interfaces.
	LocalAddress string
	// Port is the bind port. 0 binds an ephemeral port; the well known
	// Art-Net port comes from the configuration layer.
	Port int
	// UseBroadcast sends frames to the broadcast address of the local
	// interface inside BroadcastNetwork instead of a unicast peer.
	UseBroadcast bool
	// BroadcastNetwork is the CIDR the Art-Net network lives in.
	BroadcastNetwork string
	// RemoteAddress is the unicast peer, host or host:port.
	RemoteAddress string
}

// Inbound receives the payload of every ArtDMX frame the transport reads.
type Inbound interface {
	StageInbound(universe uint16, data []byte)
}

// Transport is an Art-Net node speaking DMX data frames over one UDP
// socket. Outbound frames carry a per-universe sequence number; inbound
// traffic is filtered down to ArtDMX packets and staged by universe.
type Transport struct {
	log  *logger.Log
	conn *net.UDPConn
	dest *net.UDPAddr

	seqMu sync.Mutex
	seq   map[uint16]uint8

	inbound Inbound
	stats   stats
	stop    sync.Once
}

var _ dmx.Sender = (*Transport)(nil)

// NewTransport binds the UDP socket and resolves the destination address.
func NewTransport(log logger.Logger, cfg Config) (*Transport, error) {
	laddr := &net.UDPAddr{Port: cfg.Port}
	if cfg.LocalAddress != "" {
		ip := net.ParseIP(cfg.LocalAddress)
		if ip == nil {
			return nil, fmt.Errorf("bad local address %q", cfg.LocalAddress)
		}
		laddr.IP = ip
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind art-net socket: %w", err)
	}

	dest, err := resolveDestination(cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	l := log.With(logger.Fields{"module": "art-net"})
	l.Infof("art-net socket on %s, sending to %s", conn.LocalAddr(), dest)

	return &Transport{
		log:  l,
		conn: conn,
		dest: dest,
		seq:  make(map[uint16]uint8),
	}, nil
}

func resolveDestination(cfg Config) (*net.UDPAddr, error) {
	port := cfg.Port
	if port <= 0 {
		port = DefaultPort
	}
	if !cfg.UseBroadcast && cfg.RemoteAddress != "" {
		addr := cfg.RemoteAddress
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = fmt.Sprintf("%s:%d", addr, port)
		}
		dest, err := net.ResolveUDPAddr("udp4", addr)
		if err != nil {
			return nil, fmt.Errorf("bad remote address %q: %w", cfg.RemoteAddress, err)
		}
		return dest, nil
	}
	ip, err := FindBroadcastIP(cfg.BroadcastNetwork)
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// Start launches the receive loop. Inbound ArtDMX payloads go to inbound;
// a nil inbound only counts traffic.
func (t *Transport) Start(ctx context.Context, inbound Inbound) {
	t.inbound = inbound
	go t.receiveLoop(ctx)
}

// Stop closes the socket, which also ends the receive loop.
func (t *Transport) Stop() {
	t.stop.Do(func() {
		t.conn.Close()
	})
}

// LocalAddr returns the bound socket address.
func (t *Transport) LocalAddr() net.Addr { return t.conn.LocalAddr() }

// Stats returns a copy of the transport counters.
func (t *Transport) Stats() StatsSnapshot { return t.stats.snapshot() }

// SendDMX wraps the universe buffer in an ArtDMX packet and writes it to
// the destination as one datagram.
func (t *Transport) SendDMX(universe uint16, data *[dmx.UniverseSize]byte) error {
	p := &packet.ArtDMXPacket{
		Sequence: t.nextSequence(universe),
		SubUni:   byte(universe),
		Net:      byte(universe >> 8),
		Length:   dmx.UniverseSize,
		Data:     *data,
	}
	raw, err := p.MarshalBinary()
	if err != nil {
		return &dmx.TransportError{Universe: universe, Err: err}
	}
	if _, err := t.conn.WriteToUDP(raw, t.dest); err != nil {
		t.stats.sendErrors.Add(1)
		return &dmx.TransportError{Universe: universe, Err: err}
	}
	t.stats.packetsSent.Add(1)
	return nil
}

// nextSequence cycles 1..255 per universe. Zero is reserved by the
// protocol for "sequence disabled", so it is skipped.
func (t *Transport) nextSequence(universe uint16) uint8 {
	t.seqMu.Lock()
	defer t.seqMu.Unlock()
	s := t.seq[universe] + 1
	if s == 0 {
		s = 1
	}
	t.seq[universe] = s
	return s
}

func (t *Transport) receiveLoop(ctx context.Context) {
	buf := make([]byte, 1024)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := t.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			t.stats.receiveErrors.Add(1)
			t.log.Errorf("art-net read failed: %v", err)
			continue
		}
		t.handlePacket(buf[:n])
	}
}

// handlePacket keeps ArtDMX frames and drops everything else. Payloads
// shorter than a full universe are staged as-is; the controller zero pads.
func (t *Transport) handlePacket(raw []byte) {
	p, err := packet.Unmarshal(raw)
	if err != nil {
		t.stats.packetsIgnored.Add(1)
		return
	}
	dmxPacket, ok := p.(*packet.ArtDMXPacket)
	if !ok {
		t.stats.packetsIgnored.Add(1)
		return
	}
	universe := uint16(dmxPacket.Net)<<8 | uint16(dmxPacket.SubUni)
	length := int(dmxPacket.Length)
	if length > dmx.UniverseSize {
		length = dmx.UniverseSize
	}
	t.stats.packetsReceived.Add(1)
	if t.inbound != nil {
		t.inbound.StageInbound(universe, dmxPacket.Data[:length])
	}
}
