// Package forwarder relays command records to devices.
//
// A writer stores a Command Record (target host, action, key, optional
// duration) through the record API. Its creation event reaches the
// Forwarder, which makes exactly one GET request to the device:
//
//	<espHost>/command?cmd=<action>&key=<key>&duration=<ms>
//
// and then writes the terminal outcome back to the record, once:
//
//   - any 2xx response          -> done
//   - non-2xx, transport error  -> failed, with the error text
//   - espHost, action or key    -> failed, no request made
//     missing
//
// There is no retry. A request that reached the device but whose response
// was lost leaves a failed record even though the device acted; operators
// resubmit. Pending records left behind by a crash are not swept on
// startup, for the same reason: a second delivery could actuate twice.
//
// Creation events travel over MQTT (relaylight/command/created) when it is
// enabled, or are dispatched in-process otherwise.
package forwarder
