// Package mqtt publishes provisioning events to an MQTT broker.
//
// Every successfully provisioned device produces one message on
// {prefix}/events/{entityType}/{deviceId}. The client also maintains a
// retained {prefix}/system/status topic, with a Last Will so subscribers
// see "offline" if the provisioner dies without disconnecting.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().DeviceProvisioned("Mobile", "Mobile00000008")
//	err = client.PublishJSON(topic, event)
//
// Publishing is best effort from the caller's point of view: the
// provisioning outcome never depends on the broker.
package mqtt
