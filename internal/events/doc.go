// Package events defines the messages exchanged between the sync controller
// and its observers, and fans them out to optional sinks.
//
// The primary observer is whoever requested the run (a websocket client, an
// IPC caller, or nobody). Its delivery errors are returned to the controller,
// which treats them as the observer having gone away. Sinks (Kafka, MQTT,
// ntfy, the log) are best effort: their failures are logged and never
// affect the run.
package events
