// Package mqtt provides MQTT client connectivity for the FSAPI bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The bridge sits between Gray Logic Core and the receivers on the LAN:
//
//	Gray Logic Core ↔ MQTT Broker ↔ FSAPI Bridge ↔ Receivers (HTTP)
//
// # Security Considerations
//
//   - TLS should be enabled for production deployments (cfg.Broker.TLS=true)
//   - Anonymous access is only for local development
//
// # Usage
//
//	will := &mqtt.Will{Topic: mqtt.Topics{}.BridgeHealth("fsapi"), Payload: lwt, QoS: 1}
//	client, err := mqtt.Connect(cfg.MQTT, will)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("fsapi"), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(topic, payload)
//	    })
package mqtt
