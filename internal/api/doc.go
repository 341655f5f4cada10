// Package api provides the HTTP status API and WebSocket state stream of the
// FSAPI bridge.
//
// The API is a thin layer over the running bridge. It lists the managed
// receivers with their last polled state, accepts commands (the same
// commands the bridge takes over MQTT), triggers SSDP discovery and relays
// every state change to subscribed WebSocket clients on the
// "receiver.state_changed" channel.
//
// Routes (all under /api/v1):
//
//	GET  /health                     bridge status, no auth
//	GET  /receivers                  all receivers
//	GET  /receivers/{id}             one receiver
//	POST /receivers/{id}/commands    run a command, returns the ack
//	POST /discovery                  run an SSDP search now
//	POST /auth/ws-ticket             single-use WebSocket ticket
//	GET  /ws                         WebSocket (ticket required when auth is on)
//
// Authentication is a Bearer JWT (HS256) checked against
// security.jwt.secret. With no secret configured the API is open.
package api
