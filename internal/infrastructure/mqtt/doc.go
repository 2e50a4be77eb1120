// Package mqtt provides MQTT client connectivity for Relaylight.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after a reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// MQTT is optional. When enabled, the forwarder uses it as the event bus
// between the record API and the delivery handler, and the device agent
// publishes heartbeats and actuation reports.
//
//	record API → relaylight/command/created → forwarder → device
//
// Each client publishes a retained status document on
// relaylight/status/{client_id}; the broker replaces it with an
// "unexpected_disconnect" document through the LWT if the client dies.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.CommandCreated(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
package mqtt
