package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dmxpatch/internal/artnet"
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

// frameRecorder captures the last frame sent per universe.
type frameRecorder struct {
	mu     sync.Mutex
	frames map[uint16][]byte
}

func (r *frameRecorder) SendDMX(universe uint16, data *[dmx.UniverseSize]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frames == nil {
		r.frames = map[uint16][]byte{}
	}
	buf := make([]byte, len(data))
	copy(buf, data[:])
	r.frames[universe] = buf
	return nil
}

func (r *frameRecorder) frame(universe uint16) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[universe]
}

func TestBuildStrategy(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.AllocatorConf
		wantName string
		wantErr  bool
	}{
		{
			name:     "defaults to sequential",
			cfg:      config.AllocatorConf{},
			wantName: "sequential",
		},
		{
			name:     "case insensitive",
			cfg:      config.AllocatorConf{Strategy: "Sequential"},
			wantName: "sequential",
		},
		{
			name: "matrix",
			cfg: config.AllocatorConf{
				Strategy: "matrix",
				Matrix: config.MatrixConf{
					DevicesPerRow: 8,
					BaseChannel:   1,
					ColumnSpacing: 4,
				},
			},
			wantName: "matrix",
		},
		{
			name: "user drawn",
			cfg: config.AllocatorConf{
				Strategy: "user-drawn",
				Segments: []config.SegmentConf{{StartChannel: 1, Devices: 2, ChannelsPerDevice: 4}},
			},
			wantName: "userdrawn",
		},
		{
			name: "user drawn without hyphen",
			cfg: config.AllocatorConf{
				Strategy: "userdrawn",
				Segments: []config.SegmentConf{{StartChannel: 1, Devices: 2, ChannelsPerDevice: 4}},
			},
			wantName: "userdrawn",
		},
		{
			name:    "matrix without layout",
			cfg:     config.AllocatorConf{Strategy: "matrix"},
			wantErr: true,
		},
		{
			name:    "user drawn without segments",
			cfg:     config.AllocatorConf{Strategy: "userdrawn"},
			wantErr: true,
		},
		{
			name:    "unknown strategy",
			cfg:     config.AllocatorConf{Strategy: "mosaic"},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := buildStrategy(tc.cfg)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantName, s.Name())
		})
	}
}

func TestClampLevels(t *testing.T) {
	require.Equal(t, []byte{0, 0, 128, 255, 255}, clampLevels([]int{-5, 0, 128, 255, 300}))
	require.Empty(t, clampLevels(nil))
}

func TestRegisterFixtures(t *testing.T) {
	log := newTestLogger(t)
	ctrl := dmx.NewController(log, dmx.NewSequential(), dmx.Config{EnableBatching: true})
	rec := &frameRecorder{}
	ctrl.AddSender(rec)

	fixtures := []config.FixtureConf{
		{Name: "par", Channels: 4, Mode: "output", AutoAssign: true, Levels: []int{300, -5, 128, 64}},
		{Name: "desk", Channels: 2, Mode: "input", AutoAssign: true},
	}
	require.NoError(t, registerFixtures(log, ctrl, nil, fixtures))

	placements := ctrl.Placements()
	require.Len(t, placements, 2)

	ctrl.Tick(time.Now())

	frame := rec.frame(0)
	require.NotNil(t, frame)
	require.Equal(t, []byte{255, 0, 128, 64}, frame[:4], "configured levels should land clamped")
}

func TestRegisterFixturesRejectsBadConfig(t *testing.T) {
	log := newTestLogger(t)

	tests := []struct {
		name    string
		fixture config.FixtureConf
	}{
		{
			name:    "unknown mode",
			fixture: config.FixtureConf{Name: "odd", Channels: 4, Mode: "sideways", AutoAssign: true},
		},
		{
			name:    "zero channels",
			fixture: config.FixtureConf{Name: "empty", Mode: "output", AutoAssign: true},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := dmx.NewController(log, dmx.NewSequential(), dmx.Config{})
			err := registerFixtures(log, ctrl, nil, []config.FixtureConf{tc.fixture})
			require.Error(t, err)
			require.Empty(t, ctrl.Placements())
		})
	}
}

func TestPatchSource(t *testing.T) {
	log := newTestLogger(t)
	ctrl := dmx.NewController(log, dmx.NewSequential(), dmx.Config{})

	fixtures := []config.FixtureConf{
		{Name: "wash-1", Channels: 4, Mode: "output", AutoAssign: true},
		{Name: "wash-2", Channels: 4, Mode: "output", AutoAssign: true},
	}
	require.NoError(t, registerFixtures(log, ctrl, nil, fixtures))

	out := patchSource(ctrl)()
	require.Len(t, out, 1)

	patch, ok := out["universe/0/patch"].([]dmx.PlacementInfo)
	require.True(t, ok, "patch payload should expose the placement table")
	require.Len(t, patch, 2)
}

func TestStatsSource(t *testing.T) {
	log := newTestLogger(t)
	transport, err := artnet.NewTransport(log, artnet.Config{
		LocalAddress:  "127.0.0.1",
		Port:          0,
		RemoteAddress: "127.0.0.1:6454",
	})
	require.NoError(t, err)
	t.Cleanup(transport.Stop)

	out := statsSource(transport)()
	require.Contains(t, out, "transport/stats")
}

func TestConvertMQTTConfig(t *testing.T) {
	got := convertMQTTConfig(config.MQTTConf{
		ClientID: "patch-1",
		Host:     "broker.local",
		Port:     "1883",
		Interval: 10,
	})
	require.Equal(t, "tcp", got.Schema)
	require.Equal(t, "broker.local", got.Host)
	require.Equal(t, 10*time.Second, got.Interval)
}
