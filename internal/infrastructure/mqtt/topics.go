package mqtt

import "strings"

// DefaultTopicPrefix is used when the configuration leaves topic_prefix empty.
const DefaultTopicPrefix = "provisioner"

// Topics builds the provisioner's MQTT topic names under a common prefix.
//
//	topics := mqtt.NewTopics("provisioner")
//	topics.DeviceProvisioned("Mobile", "Mobile00000008")
//	// provisioner/events/Mobile/Mobile00000008
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Surrounding slashes are
// trimmed; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// DeviceProvisioned is published once per successfully provisioned device.
//
// Example: provisioner/events/Mobile/Mobile00000008
func (t Topics) DeviceProvisioned(entityType, deviceID string) string {
	return t.Prefix() + "/events/" + entityType + "/" + deviceID
}

// SystemStatus carries the retained online/offline status and the LWT.
//
// Example: provisioner/system/status
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}

// AllEvents matches every provisioning event.
//
// Pattern: provisioner/events/+/+
func (t Topics) AllEvents() string {
	return t.Prefix() + "/events/+/+"
}
