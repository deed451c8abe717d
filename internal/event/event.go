// A collection of event names and common methods used to handle the events,
// typically redirecting the handling to a service method via the `Handler` interface.
package event

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/gramvault/gramvault/pkg/logger"
)

var log = logger.Get("Event")

// Events emitted by various parts of GramVault that should be handled by
// another, silo'd part of the architecture. Each silo/service listens for a
// specific event, which indicates an item is ready for processing by that service.
type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
	}

	eventHandler struct {
		fnHandlers   map[Event][]handlerMethod
		chanHandlers map[Event][]HandlerChannel
	}

	handlerMethod struct {
		handle HandlerMethod
		async  bool
	}
)

const (
	ImportJobUpdateEvent   Event = "import:job:update"
	ImportJobCompleteEvent Event = "import:job:complete"

	NewMediaEvent Event = "media:new"
)

func New() EventCoordinator {
	return &eventHandler{
		fnHandlers:   make(map[Event][]handlerMethod),
		chanHandlers: make(map[Event][]HandlerChannel),
	}
}

// RegisterHandlerChannel takes an event type and a channel and will send Event
// messages on the channel any time a Dispatch for the provided event occurs.
// This method can be used multiple times for different events on the same channel.
//
// If the channel is BLOCKED when the event bus attempts to send the message on the
// handler channel, then the thread dispatching the event will also be BLOCKED. It is
// recomended to buffer the handler channels appropiately to avoid dispatcher-side blocking.
func (handler *eventHandler) RegisterHandlerChannel(handle HandlerChannel, events ...Event) {
	for _, event := range events {
		handler.chanHandlers[event] = append(handler.chanHandlers[event], handle)
	}
}

// RegisterHandlerFunction takes an event type and a handler method which will be stored
// and called with the payload for the event whenever it is dispatched.
// The handle provided should be guaranteed to return quickly, else other threads calling
// Dispatch on this event bus will be blocked.
func (handler *eventHandler) RegisterHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, false})
}

// RegisterAsyncHandlerFunction accepts an Event and a HandlerMethod which will be stored
// and called inside of a goroutine when the event is dispatched.
// The speed at which this handle runs is not important to the event bus, unlike
// RegisterHandlerFunction.
func (handler *eventHandler) RegisterAsyncHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, true})
}

func (handler *eventHandler) registerHandlerMethod(event Event, handle handlerMethod) {
	handler.fnHandlers[event] = append(handler.fnHandlers[event], handle)
}

// Dispatch takes an event type and a payload and delivers the payload to every
// handler registered for the event type provided.
// Note that this method WILL block if a synchronous handler function is blocking,
// or if channel handlers are blocked.
func (handler *eventHandler) Dispatch(event Event, payload Payload) {
	if err := handler.validatePayload(event, payload); err != nil {
		log.Emit(logger.FATAL, "Dispatch for event %v FAILED validation: %v\n", event, err)
		return
	}

	if handles, ok := handler.fnHandlers[event]; ok {
		for _, handle := range handles {
			if handle.async {
				go handle.handle(event, payload)
			} else {
				handle.handle(event, payload)
			}
		}
	}

	if channels, ok := handler.chanHandlers[event]; ok {
		message := HandlerEvent{Event: event, Payload: payload}
		for _, channel := range channels {
			channel <- message
		}
	}
}

// validatePayload ensures that events which are documented to carry a
// specific payload shape actually do so before handlers observe them.
func (handler *eventHandler) validatePayload(event Event, payload Payload) error {
	switch event {
	case ImportJobUpdateEvent, ImportJobCompleteEvent, NewMediaEvent:
		if _, ok := payload.(uuid.UUID); !ok {
			return fmt.Errorf("event %s expects a UUID payload, got %T", event, payload)
		}
	}

	return nil
}
