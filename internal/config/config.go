package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the top level configuration.
type Config struct {
	Logger     LogConf
	Controller ControllerConf
	ArtNet     ArtNetConf
	Serial     SerialConf
	MQTT       MQTTConf
	Allocator  AllocatorConf
	Fixtures   []FixtureConf
}

// LogConf configures the logger.
type LogConf struct {
	Level  string `toml:"log-level"`  // Level - logrus level name.
	Format string `toml:"log-format"` // Format - "text" or "json".
}

// ControllerConf configures the frame pipeline.
type ControllerConf struct {
	SendRate       float64 `toml:"send-rate"`       // SendRate - flush frequency, Hz.
	UpdateRate     float64 `toml:"update-rate"`     // UpdateRate - default fixture poll frequency, Hz.
	EnableBatching bool    `toml:"enable-batching"` // EnableBatching - false sends on every write.
	MaxUniverses   int     `toml:"max-universes"`   // MaxUniverses - universe table size, 1..65536.
}

// ArtNetConf configures the UDP transport.
type ArtNetConf struct {
	UseBroadcast     bool   `toml:"use-broadcast"`     // UseBroadcast - send to the subnet broadcast address.
	BroadcastNetwork string `toml:"broadcast-network"` // BroadcastNetwork - CIDR the art-net network lives in.
	RemoteAddress    string `toml:"remote-address"`    // RemoteAddress - unicast peer, host or host:port.
	LocalAddress     string `toml:"local-address"`     // LocalAddress - bind IP, empty for all interfaces.
	Port             int    `toml:"port"`              // Port - UDP port for binding and sending.
	IsServer         bool   `toml:"is-server"`         // IsServer - broadcast when no peer is configured.
}

// SerialConf configures the optional serial DMX mirror.
type SerialConf struct {
	Enabled  bool   `toml:"enabled"`   // Enabled - mirror one universe to a serial widget.
	Device   string `toml:"device"`    // Device - serial device path.
	BaudRate int    `toml:"baud-rate"` // BaudRate - nominal line speed.
	Universe int    `toml:"universe"`  // Universe - which universe to mirror.
}

// MQTTConf configures the optional status publisher.
type MQTTConf struct {
	Enabled     bool   `toml:"enabled"`          // Enabled - publish status documents.
	ClientID    string `toml:"clientID"`         // ClientID - client name for the broker.
	Host        string `toml:"server"`           // Host - MQTT server address.
	Port        string `toml:"port"`             // Port - MQTT server port.
	User        string `toml:"user"`             // User - broker login.
	Password    string `toml:"password"`         // Password - broker password.
	Qos         byte   `toml:"qos"`              // Qos - quality of service.
	TopicPrefix string `toml:"topic-prefix"`     // TopicPrefix - prepended to every topic.
	Interval    int    `toml:"publish-interval"` // Interval - seconds between status publishes.
}

// AllocatorConf selects the allocation strategy and its parameters.
type AllocatorConf struct {
	Strategy string        `toml:"strategy"` // Strategy - sequential, matrix or userdrawn.
	Matrix   MatrixConf    `toml:"matrix"`
	Segments []SegmentConf `toml:"segments"`
}

// MatrixConf parameterizes the matrix strategy.
type MatrixConf struct {
	DevicesPerRow  int `toml:"devices-per-row"`
	BaseChannel    int `toml:"base-channel"`
	RowSpacing     int `toml:"row-spacing"`
	ColumnSpacing  int `toml:"column-spacing"`
	GapAfterColumn int `toml:"gap-after-column"`
	GapSize        int `toml:"gap-size"`
}

// SegmentConf is one drawn segment of device slots.
type SegmentConf struct {
	StartChannel      int `toml:"start-channel"`
	Devices           int `toml:"devices"`
	ChannelsPerDevice int `toml:"channels-per-device"`
}

// FixtureConf declares one fixture to register at startup.
type FixtureConf struct {
	Name         string  `toml:"name"`
	Channels     int     `toml:"channels"`
	Mode         string  `toml:"mode"`        // Mode - input, output or bidirectional.
	UpdateRate   float64 `toml:"update-rate"` // UpdateRate - poll frequency, Hz. 0 uses the controller default.
	Universe     int     `toml:"universe"`
	StartChannel int     `toml:"start-channel"`
	AutoAssign   bool    `toml:"auto-assign"`
	Priority     int     `toml:"priority"`
	Levels       []int   `toml:"levels"` // Levels - static output levels, 0..255 per channel.
}

// NewConfig loads the file over the defaults.
func NewConfig(path string) (*Config, error) {
	// default values
	cfg := Config{
		Logger: LogConf{Level: "info", Format: "text"},
		Controller: ControllerConf{
			SendRate:       44,
			UpdateRate:     30,
			EnableBatching: true,
			MaxUniverses:   16,
		},
		ArtNet: ArtNetConf{
			UseBroadcast:     true,
			BroadcastNetwork: "2.0.0.0/8",
			Port:             6454,
			IsServer:         true,
		},
		Serial:    SerialConf{BaudRate: 57600},
		MQTT:      MQTTConf{Interval: 30},
		Allocator: AllocatorConf{Strategy: "sequential"},
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return &cfg, err
	}
	if err := cfg.validate(); err != nil {
		return &cfg, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Controller.MaxUniverses < 1 {
		return fmt.Errorf("max-universes must be at least 1, got %d", c.Controller.MaxUniverses)
	}
	// Universe ids are 16 bit on the wire.
	if c.Controller.MaxUniverses > 65536 {
		return fmt.Errorf("max-universes must be at most 65536, got %d", c.Controller.MaxUniverses)
	}
	// A server node without a unicast peer broadcasts.
	if c.ArtNet.IsServer && c.ArtNet.RemoteAddress == "" {
		c.ArtNet.UseBroadcast = true
	}
	if !c.ArtNet.UseBroadcast && c.ArtNet.RemoteAddress == "" {
		return fmt.Errorf("remote-address is required when use-broadcast is off")
	}
	if c.Serial.Enabled && c.Serial.Device == "" {
		return fmt.Errorf("serial mirror enabled without a device")
	}
	if c.MQTT.Enabled && c.MQTT.Host == "" {
		return fmt.Errorf("mqtt enabled without a server")
	}
	return nil
}
