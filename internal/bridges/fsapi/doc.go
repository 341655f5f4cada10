// Package fsapi implements the FSAPI protocol bridge for Gray Logic.
//
// It connects Frontier Silicon network audio receivers (internet radios,
// DAB tuners, streaming amplifiers) to the Gray Logic MQTT bus.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐   HTTP/XML
//	│   Gray Logic    │   MQTT   │   FSAPI Bridge  │◄──────────► Receivers
//	│      Core       │◄────────►│   (this pkg)    │
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Poll each receiver and publish state changes (retained)
//   - Translate MQTT commands into FSAPI SET calls and acknowledge them
//   - Find receivers on the LAN with SSDP and add them automatically
//   - Persist receivers and their last state in the registry (optional)
//   - Write numeric state to the time-series store (optional)
//   - Publish bridge health
//
// # Topics
//
//	graylogic/command/fsapi/{receiver_id}   commands in
//	graylogic/ack/fsapi/{receiver_id}       acknowledgements out
//	graylogic/state/fsapi/{receiver_id}     state out (retained)
//	graylogic/health/fsapi                  health out (retained, LWT)
//	graylogic/discovery/fsapi               discovery results out
//
// # Thread Safety
//
// All exported methods of Bridge and HealthReporter are safe for concurrent use.
package fsapi
