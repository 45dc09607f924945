package transport

import (
	"reflect"
	"sync"

	"google.golang.org/protobuf/proto"
)

// MessageHandler is invoked once per received protobuf message of the
// type it was registered for.
type MessageHandler func(message proto.Message)

// HandlerRegistry dispatches decoded protobuf messages to handlers
// registered by concrete message type (e.g. *meshtastic.NodeInfo).
// Unregistered message types are simply not dispatched.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[reflect.Type][]MessageHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: map[reflect.Type][]MessageHandler{}}
}

// Handle registers handler to be invoked for every message of the same
// concrete type as kind.
func (r *HandlerRegistry) Handle(kind proto.Message, handler MessageHandler) {
	t := reflect.TypeOf(kind)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = append(r.handlers[t], handler)
}

// HandleMessage dispatches msg to every handler registered for its
// concrete type. Returns true if at least one handler ran.
func (r *HandlerRegistry) HandleMessage(msg proto.Message) bool {
	t := reflect.TypeOf(msg)
	r.mu.RLock()
	handlers := r.handlers[t]
	r.mu.RUnlock()
	for _, h := range handlers {
		h(msg)
	}
	return len(handlers) > 0
}
