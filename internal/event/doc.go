/*
Package event carries inbound chat events to the components that react to
them.

# Architecture

Events are serialised to JSON and published on a watermill gochannel, one
topic per event type. A consumer goroutine per topic decodes each message
back into its typed payload and hands it to the subscribed handlers, so
publishers never block on command execution.

# Event Types

  - message.created: a user message arrived (MessageCreatedData)
  - message.edited: a user message was edited (MessageEditedData)
  - command.finished: a command run reached a terminal outcome
    (CommandFinishedData)
  - module.toggled: a module was enabled or disabled (ModuleToggledData)

# Ordering

Handlers carry a priority. For every event, handlers are started in order
of increasing priority, each in its own goroutine, and a failing or
panicking handler never affects the others. The dispatcher subscribes with
CorePriority so it is always started first.

	bus := event.NewBus(logger)
	defer bus.Close()

	unsub := bus.Subscribe(event.MessageCreated, func(ctx context.Context, e event.Event) error {
		data := e.Data.(event.MessageCreatedData)
		...
	}, event.WithPriority(10))
	defer unsub()

PublishSync skips the transport and runs the handlers one after another in
the caller's goroutine, which the HTTP gateway uses when a caller asks to
wait for the result.
*/
package event
