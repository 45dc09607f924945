// Command bridge is the meshtastic-2-signal gateway process (C7
// bootstrap, wiring every other component together).
package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"

	"github.com/dq1Mango/meshtastic-2-signal/internal/bridge"
	"github.com/dq1Mango/meshtastic-2-signal/internal/config"
	meshrouter "github.com/dq1Mango/meshtastic-2-signal/internal/meshtastic"
	"github.com/dq1Mango/meshtastic-2-signal/internal/meshtastic/mqttbridge"
	"github.com/dq1Mango/meshtastic-2-signal/internal/meshtastic/transport"
	"github.com/dq1Mango/meshtastic-2-signal/internal/meshtastic/transport/serial"
	"github.com/dq1Mango/meshtastic-2-signal/internal/signal"
)

func main() {
	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log := config.NewLogger(os.Getenv("DEBUG") != "")

	configPath := "config.toml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("loading config", "err", err)
	}

	groupKey, err := cfg.BridgedGroupKey()
	if err != nil {
		log.Fatal("invalid group_key", "err", err)
	}

	storePath := filepath.Join(os.Getenv("HOME"), ".local", "share", "meshtastic-2-signal", "signal.db3")
	signalLog := config.NewSignalLogger(os.Getenv("DEBUG") != "")
	backend, err := signal.OpenOrLink(ctx, storePath, "meshtastic-2-signal", signalLog)
	if err != nil {
		log.Fatal("opening signal account", "err", err)
	}

	signalClient := signal.NewClient(backend, signalLog)
	go signalClient.Run(ctx)

	printGroups(ctx, signalClient, log)

	meshPort := cfg.Mesh.Port
	if meshPort == "" {
		ports, err := serial.AvailablePorts()
		if err != nil || len(ports) == 0 {
			log.Fatal("no mesh serial port configured and none detected", "err", err)
		}
		meshPort = ports[0]
	}
	conn, err := serial.Connect(meshPort, cfg.Mesh.BaudRate)
	if err != nil {
		log.Fatal("opening mesh serial port", "port", meshPort, "err", err)
	}
	streamConn, err := transport.NewClientStreamConn(conn)
	if err != nil {
		log.Fatal("initializing mesh stream", "err", err)
	}

	meshClient := transport.NewClient(streamConn, nil)
	if err := meshClient.Connect(ctx); err != nil {
		log.Fatal("connecting to mesh radio", "err", err)
	}

	sourceNodeID := meshClient.State.NodeInfo().GetMyNodeNum()
	acks := make(chan meshrouter.Ack, 16)
	router := meshrouter.NewRouter(sourceNodeID, acks)

	model := bridge.NewModel(backend.AccountUUID(), groupKey, cfg.ChannelIndex)
	loop := bridge.NewLoop(model, meshClient, router, signalClient, acks, log)

	if cfg.MQTTEnabled() {
		uplink, err := mqttbridge.Connect(mqttbridge.Config{
			Broker:    cfg.MQTT.Broker,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			TopicRoot: cfg.MQTT.TopicRoot,
		})
		if err != nil {
			log.Warn("mqtt uplink disabled", "err", err)
		} else {
			go forwardMQTT(ctx, uplink, loop)
		}
	}

	log.Info("bridge running")
	if err := loop.Run(ctx); err != nil {
		log.Fatal("bridge loop exited with error", "err", err)
	}
}

func forwardMQTT(ctx context.Context, uplink *mqttbridge.Uplink, loop *bridge.Loop) {
	for {
		select {
		case <-ctx.Done():
			uplink.Close()
			return
		case frame, ok := <-uplink.Frames():
			if !ok {
				return
			}
			loop.IngestFromRadio(frame)
		}
	}
}

func printGroups(ctx context.Context, client *signal.Client, log *charmlog.Logger) {
	groups, err := client.ListGroups(ctx)
	if err != nil {
		log.Warn("listing signal groups", "err", err)
		return
	}
	for _, g := range groups {
		log.Info("signal group", "title", g.Title, "master_key", fmt.Sprintf("%x", g.MasterKey))
	}
}
