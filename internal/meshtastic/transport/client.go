package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"google.golang.org/protobuf/proto"
)

var ErrTimeout = errors.New("transport: timeout connecting to radio")

// Client speaks the Meshtastic stream protocol over a StreamConn: it
// requests the device's config on connect, tracks the node/channel/
// config state the device reports, and exposes every FromRadio frame
// it receives (after config handshake completes) as a duplex
// frame stream via Frames(). This is the "radio library" the bridge's
// event multiplexer (C5) treats as one of its two input streams — see
// spec §2.
type Client struct {
	sc       *StreamConn
	handlers *HandlerRegistry
	log      *slog.Logger

	State State

	frames chan *meshtastic.FromRadio
}

// State mirrors the device-reported configuration the client
// accumulates during the want-config handshake. All access goes
// through its accessor methods, which return deep clones so callers
// never observe (or race on) partially built state.
type State struct {
	sync.RWMutex
	complete       bool
	configID       uint32
	nodeInfo       *meshtastic.MyNodeInfo
	deviceMetadata *meshtastic.DeviceMetadata
	nodes          []*meshtastic.NodeInfo
	channels       []*meshtastic.Channel
	configs        []*meshtastic.Config
	modules        []*meshtastic.ModuleConfig
}

func (s *State) Complete() bool {
	s.RLock()
	defer s.RUnlock()
	return s.complete
}

func (s *State) setComplete(id uint32) {
	s.Lock()
	defer s.Unlock()
	s.complete = true
	s.configID = id
}

func (s *State) setNodeInfo(info *meshtastic.MyNodeInfo) {
	s.Lock()
	defer s.Unlock()
	s.nodeInfo = proto.Clone(info).(*meshtastic.MyNodeInfo)
}

func (s *State) NodeInfo() *meshtastic.MyNodeInfo {
	s.RLock()
	defer s.RUnlock()
	if s.nodeInfo == nil {
		return nil
	}
	return proto.Clone(s.nodeInfo).(*meshtastic.MyNodeInfo)
}

func (s *State) setDeviceMetadata(md *meshtastic.DeviceMetadata) {
	s.Lock()
	defer s.Unlock()
	s.deviceMetadata = proto.Clone(md).(*meshtastic.DeviceMetadata)
}

func (s *State) appendNode(n *meshtastic.NodeInfo) {
	s.Lock()
	defer s.Unlock()
	s.nodes = append(s.nodes, proto.Clone(n).(*meshtastic.NodeInfo))
}

func (s *State) Nodes() []*meshtastic.NodeInfo {
	s.RLock()
	defer s.RUnlock()
	out := make([]*meshtastic.NodeInfo, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = proto.Clone(n).(*meshtastic.NodeInfo)
	}
	return out
}

func (s *State) appendChannel(c *meshtastic.Channel) {
	s.Lock()
	defer s.Unlock()
	s.channels = append(s.channels, proto.Clone(c).(*meshtastic.Channel))
}

func (s *State) Channels() []*meshtastic.Channel {
	s.RLock()
	defer s.RUnlock()
	out := make([]*meshtastic.Channel, len(s.channels))
	for i, c := range s.channels {
		out[i] = proto.Clone(c).(*meshtastic.Channel)
	}
	return out
}

func (s *State) appendConfig(c *meshtastic.Config) {
	s.Lock()
	defer s.Unlock()
	s.configs = append(s.configs, proto.Clone(c).(*meshtastic.Config))
}

func (s *State) appendModule(m *meshtastic.ModuleConfig) {
	s.Lock()
	defer s.Unlock()
	s.modules = append(s.modules, proto.Clone(m).(*meshtastic.ModuleConfig))
}

// NewClient wraps sc with handshake and dispatch bookkeeping. Handlers
// registered via Handle are invoked, in addition to frames being made
// available via Frames(), once the handshake (State.Complete) finishes.
func NewClient(sc *StreamConn, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		sc:       sc,
		handlers: NewHandlerRegistry(),
		log:      log,
		frames:   make(chan *meshtastic.FromRadio, 64),
	}
}

// Handle registers a handler for a specific FromRadio payload message
// type (e.g. new(meshtastic.NodeInfo)).
func (c *Client) Handle(kind proto.Message, handler MessageHandler) {
	c.handlers.Handle(kind, handler)
}

// Frames returns the channel of post-handshake FromRadio frames. The
// channel is closed when Connect's read loop ends (EOF or error).
func (c *Client) Frames() <-chan *meshtastic.FromRadio {
	return c.frames
}

// SendToRadio writes one ToRadio message to the device.
func (c *Client) SendToRadio(msg *meshtastic.ToRadio) error {
	return c.sc.Write(msg)
}

func (c *Client) sendWantConfig() error {
	id := rand.Uint32()
	return c.SendToRadio(&meshtastic.ToRadio{
		PayloadVariant: &meshtastic.ToRadio_WantConfigId{WantConfigId: id},
	})
}

// Connect performs the want-config handshake and then spawns the read
// loop that feeds Frames() until ctx is cancelled or the stream ends.
// It returns once the handshake completes (or ctx expires first).
func (c *Client) Connect(ctx context.Context) error {
	if err := c.sendWantConfig(); err != nil {
		return fmt.Errorf("requesting config: %w", err)
	}

	cfgComplete := make(chan struct{})
	readErr := make(chan error, 1)

	go func() {
		defer close(c.frames)
		for {
			msg := &meshtastic.FromRadio{}
			if err := c.sc.Read(msg); err != nil {
				readErr <- err
				return
			}

			switch payload := msg.GetPayloadVariant().(type) {
			case *meshtastic.FromRadio_MyInfo:
				c.State.setNodeInfo(payload.MyInfo)
			case *meshtastic.FromRadio_Metadata:
				c.State.setDeviceMetadata(payload.Metadata)
			case *meshtastic.FromRadio_NodeInfo:
				c.State.appendNode(payload.NodeInfo)
			case *meshtastic.FromRadio_Channel:
				c.State.appendChannel(payload.Channel)
			case *meshtastic.FromRadio_Config:
				c.State.appendConfig(payload.Config)
			case *meshtastic.FromRadio_ModuleConfig:
				c.State.appendModule(payload.ModuleConfig)
			case *meshtastic.FromRadio_ConfigCompleteId:
				c.State.setComplete(payload.ConfigCompleteId)
				close(cfgComplete)
			case *meshtastic.FromRadio_LogRecord:
				c.log.Debug("radio log record", "record", payload.LogRecord)
			default:
				c.log.Warn("unhandled FromRadio payload", "type", fmt.Sprintf("%T", payload))
			}

			if c.State.Complete() {
				m := msg.ProtoReflect()
				if fd := m.WhichOneof(m.Descriptor().Oneofs().ByName("payload_variant")); fd != nil && fd.Message() != nil {
					c.handlers.HandleMessage(m.Get(fd).Message().Interface())
				}
				select {
				case c.frames <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ErrTimeout
	case err := <-readErr:
		return fmt.Errorf("reading from radio: %w", err)
	case <-cfgComplete:
		return nil
	}
}
