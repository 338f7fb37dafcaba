// Package mqtt provides the broker connection of own-bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS and retain flags
//   - Topic subscriptions, restored after every reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The host automation system talks to the OpenWebNet gateways only through
// the broker:
//
//	Host ↔ MQTT Broker ↔ own-bridge ↔ BUS/ZigBee gateway
//
// Topics follow ownbridge/{category}/{protocol}/{thing}[/{channel}]; build
// them with Topics rather than by hand.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllChannelCommands("openwebnet"), 1, handler)
package mqtt
