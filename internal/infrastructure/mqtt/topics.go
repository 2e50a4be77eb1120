package mqtt

import "fmt"

// TopicPrefix is the root of every Relaylight topic.
const TopicPrefix = "relaylight"

// Topics provides builders for Relaylight MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.CommandCreated()          // relaylight/command/created
//	topics.DeviceHeartbeat("esp-01") // relaylight/device/esp-01/heartbeat
type Topics struct{}

// CommandCreated returns the topic carrying command record creation events.
// The forwarder subscribes here; the record API publishes here.
//
// Example: relaylight/command/created
func (Topics) CommandCreated() string {
	return TopicPrefix + "/command/created"
}

// DeviceHeartbeat returns the topic a device publishes its heartbeat on.
//
// Example: relaylight/device/relaylight-001/heartbeat
func (Topics) DeviceHeartbeat(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/heartbeat", TopicPrefix, deviceID)
}

// DeviceActuation returns the topic a device publishes executed commands on.
//
// Example: relaylight/device/relaylight-001/actuation
func (Topics) DeviceActuation(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/actuation", TopicPrefix, deviceID)
}

// ClientStatus returns the retained online/offline topic of a client.
//
// Example: relaylight/status/relaylight-forwarder
func (Topics) ClientStatus(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, clientID)
}

// AllDeviceHeartbeats returns a pattern matching every device heartbeat.
//
// Pattern: relaylight/device/+/heartbeat
func (Topics) AllDeviceHeartbeats() string {
	return TopicPrefix + "/device/+/heartbeat"
}

// AllClientStatus returns a pattern matching every client status.
//
// Pattern: relaylight/status/+
func (Topics) AllClientStatus() string {
	return TopicPrefix + "/status/+"
}
