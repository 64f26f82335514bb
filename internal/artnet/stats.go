package artnet

import "sync/atomic"

// stats tracks transport counters. Updated atomically from both the send
// path and the receive loop.
type stats struct {
	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	packetsIgnored  atomic.Uint64
	sendErrors      atomic.Uint64
	receiveErrors   atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the transport counters.
type StatsSnapshot struct {
	PacketsSent     uint64 `json:"packets_sent"`
	PacketsReceived uint64 `json:"packets_received"`
	PacketsIgnored  uint64 `json:"packets_ignored"`
	SendErrors      uint64 `json:"send_errors"`
	ReceiveErrors   uint64 `json:"receive_errors"`
}

func (s *stats) snapshot() StatsSnapshot {
	return StatsSnapshot{
		PacketsSent:     s.packetsSent.Load(),
		PacketsReceived: s.packetsReceived.Load(),
		PacketsIgnored:  s.packetsIgnored.Load(),
		SendErrors:      s.sendErrors.Load(),
		ReceiveErrors:   s.receiveErrors.Load(),
	}
}
