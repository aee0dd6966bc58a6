// Package server provides the HTTP gateway in front of the command engine.
//
// The gateway plays the chat platform: it accepts inbound messages and
// edits, publishes them on the event bus for the dispatcher, and exposes the
// in-memory channels so clients can read the bot's replies. It also offers
// introspection of registered commands, modules and cached invocation
// contexts.
//
// # API Endpoints
//
//   - PUT   /channels/{channelID}: declare a channel and its permissions
//   - GET   /channels: list known channels
//   - GET   /channels/{channelID}/messages: list a channel's messages
//   - POST  /channels/{channelID}/messages: post a user message
//   - PATCH /channels/{channelID}/messages/{messageID}: edit a user message
//   - POST  /invoke: run a command without a triggering message
//   - GET   /commands: list registered commands
//   - GET   /modules, PATCH /modules/{name}: list and toggle modules
//   - GET   /contexts/{messageID}: the cached invocation for a message
//   - GET   /event: Server-Sent Events stream of bus events
//   - GET   /health
//
// Posting and editing are asynchronous by default and answer 202. With
// "sync": true the request returns once the dispatcher has handled the
// message, along with the replies it produced.
package server
