package artnet

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Haba1234/go-artnet/packet"
	"github.com/stretchr/testify/require"

	"dmxpatch/internal/config"
	"dmxpatch/internal/dmx"
	"dmxpatch/internal/logger"
)

func newTestLogger(t *testing.T) *logger.Log {
	t.Helper()
	log, err := logger.NewLogger(config.LogConf{Level: "error"})
	require.NoError(t, err)
	return log
}

type stagedFrame struct {
	universe uint16
	data     []byte
}

type stageRecorder struct {
	mu     sync.Mutex
	frames []stagedFrame
}

func (r *stageRecorder) StageInbound(universe uint16, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	r.frames = append(r.frames, stagedFrame{universe: universe, data: copied})
}

func (r *stageRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *stageRecorder) last() (stagedFrame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return stagedFrame{}, false
	}
	return r.frames[len(r.frames)-1], true
}

// newLoopbackPair binds two transports on ephemeral localhost ports, with
// the sender aimed at the receiver, and starts the receiver's loop.
func newLoopbackPair(t *testing.T) (*Transport, *Transport, *stageRecorder) {
	t.Helper()
	log := newTestLogger(t)

	recv, err := NewTransport(log, Config{
		LocalAddress:  "127.0.0.1",
		RemoteAddress: "127.0.0.1:6454",
	})
	require.NoError(t, err)
	t.Cleanup(recv.Stop)

	send, err := NewTransport(log, Config{
		LocalAddress:  "127.0.0.1",
		RemoteAddress: recv.LocalAddr().String(),
	})
	require.NoError(t, err)
	t.Cleanup(send.Stop)

	rec := &stageRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	recv.Start(ctx, rec)

	return send, recv, rec
}

func TestTransportRoundTrip(t *testing.T) {
	send, recv, rec := newLoopbackPair(t)

	var data [dmx.UniverseSize]byte
	data[0] = 0x11
	data[511] = 0xFF
	require.NoError(t, send.SendDMX(258, &data))

	require.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 10*time.Millisecond)

	frame, ok := rec.last()
	require.True(t, ok)
	require.Equal(t, uint16(258), frame.universe)
	require.Len(t, frame.data, dmx.UniverseSize)
	require.Equal(t, byte(0x11), frame.data[0])
	require.Equal(t, byte(0xFF), frame.data[511])

	require.Equal(t, uint64(1), send.Stats().PacketsSent)
	require.Equal(t, uint64(1), recv.Stats().PacketsReceived)
}

func TestTransportIgnoresNonDMXTraffic(t *testing.T) {
	_, recv, rec := newLoopbackPair(t)

	conn, err := net.Dial("udp4", recv.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	poll, err := packet.NewArtPollPacket().MarshalBinary()
	require.NoError(t, err)
	_, err = conn.Write(poll)
	require.NoError(t, err)
	_, err = conn.Write([]byte("definitely not art-net"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return recv.Stats().PacketsIgnored >= 2 },
		time.Second, 10*time.Millisecond)
	require.Equal(t, 0, rec.count())
}

func TestTransportShortPayloadKeepsLength(t *testing.T) {
	_, recv, rec := newLoopbackPair(t)

	// The library codec always marshals a full 512 byte payload, so the
	// truncated frame is assembled by hand.
	raw := []byte{
		'A', 'r', 't', '-', 'N', 'e', 't', 0x00,
		0x00, 0x50, // OpDmx, little endian
		0x00, 0x0e, // protocol version 14
		0x01, 0x00, // sequence, physical
		0x07, 0x00, // subuni, net
		0x00, 0x04, // length, big endian
		1, 2, 3, 4,
	}

	conn, err := net.Dial("udp4", recv.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(raw)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.count() == 1 },
		time.Second, 10*time.Millisecond)

	frame, ok := rec.last()
	require.True(t, ok)
	require.Equal(t, uint16(7), frame.universe)
	require.Equal(t, []byte{1, 2, 3, 4}, frame.data)
}

func TestTransportSequenceNumbers(t *testing.T) {
	tr := &Transport{seq: make(map[uint16]uint8)}

	require.Equal(t, uint8(1), tr.nextSequence(0))
	require.Equal(t, uint8(2), tr.nextSequence(0))
	require.Equal(t, uint8(1), tr.nextSequence(7), "universes count independently")

	tr.seq[3] = 255
	require.Equal(t, uint8(1), tr.nextSequence(3), "zero is reserved and skipped")
}

func TestTransportSendAfterStop(t *testing.T) {
	send, _, _ := newLoopbackPair(t)
	send.Stop()

	var data [dmx.UniverseSize]byte
	err := send.SendDMX(0, &data)

	var terr *dmx.TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, uint16(0), terr.Universe)
	require.Equal(t, uint64(1), send.Stats().SendErrors)
}

func TestNewTransportRejectsBadAddresses(t *testing.T) {
	log := newTestLogger(t)

	_, err := NewTransport(log, Config{LocalAddress: "not-an-ip"})
	require.Error(t, err)

	_, err = NewTransport(log, Config{LocalAddress: "127.0.0.1", RemoteAddress: "]bad[:99"})
	require.Error(t, err)
}

func TestBroadcastOf(t *testing.T) {
	cases := []struct {
		name string
		ip   string
		mask net.IPMask
		want string
	}{
		{"class c", "192.168.1.57", net.CIDRMask(24, 32), "192.168.1.255"},
		{"art-net primary", "2.0.0.1", net.CIDRMask(8, 32), "2.255.255.255"},
		{"not an ipv4 mask", "10.0.0.1", net.CIDRMask(64, 128), "255.255.255.255"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ip := net.ParseIP(tc.ip).To4()
			require.NotNil(t, ip)
			require.Equal(t, tc.want, broadcastOf(ip, tc.mask).String())
		})
	}
}

func TestFindBroadcastIP(t *testing.T) {
	_, err := FindBroadcastIP("not-a-cidr")
	require.Error(t, err)

	// No interface sits in TEST-NET-3, so the limited broadcast address
	// comes back.
	ip, err := FindBroadcastIP("203.0.113.0/24")
	require.NoError(t, err)
	require.Equal(t, "255.255.255.255", ip.String())

	// The loopback interface always matches its own network.
	ip, err = FindBroadcastIP("127.0.0.0/8")
	require.NoError(t, err)
	require.Equal(t, "127.255.255.255", ip.String())
}
