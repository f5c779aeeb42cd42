// Package notifications delivers sync and upload milestones to ntfy.
//
// The topic comes from events.ntfy_topic in config.toml; a bare topic name is
// published to the public ntfy server and a full URL is used as-is. When no
// topic is configured a no-op Service is returned so callers never branch on
// whether notifications are enabled.
package notifications
