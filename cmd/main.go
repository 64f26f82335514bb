package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dmxpatch/internal/artnet"
	"dmxpatch/internal/config"
	"dmxpatch/internal/dmx"
	"dmxpatch/internal/logger"
	"dmxpatch/internal/serialdmx"
	"dmxpatch/internal/statusmqtt"
)

var configFile string

func init() {
	flag.StringVar(&configFile, "config", "configs/conf.toml", "Path to configuration file")
}

func main() {
	flag.Parse()
	cfg, err := config.NewConfig(configFile)
	if err != nil {
		fmt.Printf("configuration file read error: %v", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Printf("failed to create a logger: %v", err)
		os.Exit(1)
	}

	log.With(logger.Fields{"module": "logger"}).Debug("newLogger created ok")

	strategy, err := buildStrategy(cfg.Allocator)
	if err != nil {
		log.With(logger.Fields{"module": "dmx"}).Errorf("bad allocator configuration: %v", err)
		os.Exit(1)
	}

	ctrl := dmx.NewController(log, strategy, convertControllerConfig(cfg.Controller))

	transport, err := artnet.NewTransport(log, convertArtNetConfig(cfg.ArtNet))
	if err != nil {
		log.With(logger.Fields{"module": "art-net"}).Errorf("error while creating the art-net transport. %v", err)
		os.Exit(1)
	}
	ctrl.AddSender(transport)

	var serial *serialdmx.Output
	if cfg.Serial.Enabled {
		serial, err = serialdmx.Open(log, serialdmx.Config{
			Device:   cfg.Serial.Device,
			BaudRate: cfg.Serial.BaudRate,
			Universe: uint16(cfg.Serial.Universe),
		})
		if err != nil {
			log.With(logger.Fields{"module": "serial-dmx"}).Errorf("error opening the serial mirror. %v", err)
			os.Exit(1)
		}
		ctrl.AddSender(serial)
	}

	var publisher *statusmqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = statusmqtt.NewPublisher(log, convertMQTTConfig(cfg.MQTT))
		publisher.AddSource(patchSource(ctrl))
		publisher.AddSource(statsSource(transport))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	if err := registerFixtures(log, ctrl, publisher, cfg.Fixtures); err != nil {
		log.With(logger.Fields{"module": "dmx"}).Errorf("failed to register fixtures: %v", err)
		os.Exit(1)
	}

	transport.Start(ctx, ctrl)

	if publisher != nil {
		if err = publisher.Start(ctx); err != nil {
			log.Error("failed to start MQTT service:", err.Error())
			cancel()
		}
	}

	go ctrl.Run(ctx)

	<-ctx.Done()

	if publisher != nil {
		if err := publisher.Stop(); err != nil {
			log.Error("failed to stop MQTT service:", err.Error())
		}
	}

	transport.Stop()

	if serial != nil {
		if err := serial.Close(); err != nil {
			log.Error("failed to close the serial mirror:", err.Error())
		}
	}

	log.Info("shutdown complete")
}

// buildStrategy constructs the configured allocation strategy.
func buildStrategy(cfg config.AllocatorConf) (dmx.Strategy, error) {
	switch strings.ToLower(cfg.Strategy) {
	case "", "sequential":
		return dmx.NewSequential(), nil
	case "matrix":
		return dmx.NewMatrix(dmx.MatrixConfig{
			DevicesPerRow:  cfg.Matrix.DevicesPerRow,
			BaseChannel:    cfg.Matrix.BaseChannel,
			RowSpacing:     cfg.Matrix.RowSpacing,
			ColumnSpacing:  cfg.Matrix.ColumnSpacing,
			GapAfterColumn: cfg.Matrix.GapAfterColumn,
			GapSize:        cfg.Matrix.GapSize,
		})
	case "userdrawn", "user-drawn":
		segments := make([]dmx.Segment, 0, len(cfg.Segments))
		for _, s := range cfg.Segments {
			segments = append(segments, dmx.Segment{
				StartChannel:      s.StartChannel,
				Devices:           s.Devices,
				ChannelsPerDevice: s.ChannelsPerDevice,
			})
		}
		return dmx.NewUserDrawn(segments)
	default:
		return nil, fmt.Errorf("unknown allocation strategy %q", cfg.Strategy)
	}
}

// registerFixtures creates and registers every configured fixture. Output
// fixtures publish their static levels; input fixtures log what arrives
// and forward it to MQTT when the publisher is up.
func registerFixtures(log *logger.Log, ctrl *dmx.Controller, publisher *statusmqtt.Publisher, fixtures []config.FixtureConf) error {
	for _, fc := range fixtures {
		mode, err := dmx.ParseMode(fc.Mode)
		if err != nil {
			return fmt.Errorf("fixture %s: %w", fc.Name, err)
		}

		devCfg := dmx.DeviceConfig{
			Name:       fc.Name,
			Channels:   fc.Channels,
			Mode:       mode,
			UpdateRate: fc.UpdateRate,
			Preferred: dmx.Placement{
				Universe:   uint16(fc.Universe),
				Start:      fc.StartChannel,
				AutoAssign: fc.AutoAssign,
				Priority:   fc.Priority,
			},
		}

		if mode == dmx.ModeInput || mode == dmx.ModeBidirectional {
			name := fc.Name
			l := log.With(logger.Fields{"module": "dmx", "fixture": name})
			devCfg.Consumer = func(data []byte) {
				l.Debugf("received %d channel bytes", len(data))
				if publisher != nil {
					publisher.PublishJSON(fmt.Sprintf("input/%s", name), data)
				}
			}
		}

		dev, err := dmx.NewDevice(devCfg)
		if err != nil {
			return err
		}
		if len(fc.Levels) > 0 {
			dev.SetOutput(clampLevels(fc.Levels))
		}
		if err := ctrl.Register(dev); err != nil {
			return err
		}
	}
	return nil
}

// clampLevels converts configured integer levels to channel bytes.
func clampLevels(levels []int) []byte {
	out := make([]byte, len(levels))
	for i, v := range levels {
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		out[i] = byte(v)
	}
	return out
}

// patchSource reports the live patch table grouped by universe.
func patchSource(ctrl *dmx.Controller) statusmqtt.Source {
	return func() map[string]interface{} {
		byUniverse := map[uint16][]dmx.PlacementInfo{}
		for _, p := range ctrl.Placements() {
			byUniverse[p.Universe] = append(byUniverse[p.Universe], p)
		}
		out := make(map[string]interface{}, len(byUniverse))
		for id, placements := range byUniverse {
			out[fmt.Sprintf("universe/%d/patch", id)] = placements
		}
		return out
	}
}

// statsSource reports the transport counters.
func statsSource(transport *artnet.Transport) statusmqtt.Source {
	return func() map[string]interface{} {
		return map[string]interface{}{"transport/stats": transport.Stats()}
	}
}

// convertControllerConfig converts the structures.
func convertControllerConfig(cfg config.ControllerConf) dmx.Config {
	return dmx.Config{
		SendRate:       cfg.SendRate,
		UpdateRate:     cfg.UpdateRate,
		EnableBatching: cfg.EnableBatching,
		MaxUniverses:   cfg.MaxUniverses,
	}
}

// convertArtNetConfig converts the structures.
func convertArtNetConfig(cfg config.ArtNetConf) artnet.Config {
	return artnet.Config{
		LocalAddress:     cfg.LocalAddress,
		Port:             cfg.Port,
		UseBroadcast:     cfg.UseBroadcast,
		BroadcastNetwork: cfg.BroadcastNetwork,
		RemoteAddress:    cfg.RemoteAddress,
	}
}

// convertMQTTConfig converts the structures.
func convertMQTTConfig(cfg config.MQTTConf) statusmqtt.Config {
	return statusmqtt.Config{
		ClientID:    cfg.ClientID,
		Schema:      "tcp",
		Host:        cfg.Host,
		Port:        cfg.Port,
		User:        cfg.User,
		Password:    cfg.Password,
		Qos:         cfg.Qos,
		TopicPrefix: cfg.TopicPrefix,
		Interval:    time.Duration(cfg.Interval) * time.Second,
	}
}
