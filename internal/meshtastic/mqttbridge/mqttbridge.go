// Package mqttbridge implements C9, the optional supplementary
// mesh-ingress source (SPEC_FULL.md §2): real Meshtastic deployments
// commonly mirror packets onto an MQTT broker in addition to a direct
// serial link, and this package decodes that stream into the same
// *meshtastic.FromRadio shape the serial transport produces, so the
// rest of the bridge never needs to know which transport a frame came
// from.
//
// Grounded on the teacher's examples/mqtt/main.go channelHandler
// pattern (ServiceEnvelope unmarshal → packet decode); the subscriber
// itself is reconstructed directly against github.com/eclipse/paho.mqtt.golang
// since the teacher's own public/mqtt wrapper (referenced by that
// example but never defined in the retrieved files) offers nothing
// beyond a trivial Node struct to adapt.
package mqttbridge

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"google.golang.org/protobuf/proto"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"

	"github.com/dq1Mango/meshtastic-2-signal/internal/meshtastic/protocol"
)

// Config is the optional MQTT uplink's connection parameters
// (the [mqtt] table of config.toml, SPEC_FULL.md §6).
type Config struct {
	Broker    string
	Username  string
	Password  string
	TopicRoot string
}

// Uplink subscribes to the configured broker and publishes every
// decodable frame on Frames().
type Uplink struct {
	client mqtt.Client
	frames chan *meshtastic.FromRadio
}

// Connect dials the broker and subscribes to <topic_root>/2/e/+/+, the
// conventional Meshtastic MQTT "encrypted envelope" wildcard topic.
func Connect(cfg Config) (*Uplink, error) {
	u := &Uplink{frames: make(chan *meshtastic.FromRadio, 64)}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetClientID("meshtastic-2-signal")

	u.client = mqtt.NewClient(opts)
	if token := u.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connecting to %s: %w", cfg.Broker, token.Error())
	}

	topic := cfg.TopicRoot + "/2/e/+/+"
	if token := u.client.Subscribe(topic, 0, u.handle); token.Wait() && token.Error() != nil {
		u.client.Disconnect(250)
		return nil, fmt.Errorf("mqtt: subscribing to %s: %w", topic, token.Error())
	}

	return u, nil
}

// Frames is the ingestion point the bridge loop forwards via
// bridge.Loop.IngestFromRadio.
func (u *Uplink) Frames() <-chan *meshtastic.FromRadio {
	return u.frames
}

func (u *Uplink) Close() {
	u.client.Disconnect(250)
	close(u.frames)
}

func (u *Uplink) handle(_ mqtt.Client, msg mqtt.Message) {
	var envelope meshtastic.ServiceEnvelope
	if err := proto.Unmarshal(msg.Payload(), &envelope); err != nil {
		return
	}
	packet := envelope.GetPacket()
	if packet == nil {
		return
	}
	if _, err := protocol.ExtractData(packet); err != nil {
		// Encrypted-with-a-different-key or otherwise undecodable:
		// drop, same as the serial path (spec §4.3/§7).
		return
	}

	frame := &meshtastic.FromRadio{PayloadVariant: &meshtastic.FromRadio_Packet{Packet: packet}}
	select {
	case u.frames <- frame:
	default:
	}
}
