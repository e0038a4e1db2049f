package nats

import (
	"strings"

	"mqtt-cluster/internal/storage"
)

var subjectReplacer = strings.NewReplacer(
	".", "_",
	" ", "_",
	",", "_",
	":", "_",
	"?", "_",
	"[", "_",
	"]", "_",
	"*", "_",
	">", "_",
)

// ToNATSSubject converts an MQTT topic name to NATS subject tokens.
// MQTT uses / as the separator, NATS uses . so dots and other characters
// NATS treats specially are replaced inside each level. Empty levels
// become "_" since NATS does not allow empty tokens.
func ToNATSSubject(mqttTopic string) string {
	levels := strings.Split(mqttTopic, "/")
	for i, level := range levels {
		level = NormalizeSubject(level)
		if level == "" {
			level = "_"
		}
		levels[i] = level
	}
	return strings.Join(levels, ".")
}

// NormalizeSubject replaces characters that are not valid inside a NATS token
func NormalizeSubject(token string) string {
	return subjectReplacer.Replace(token)
}

// EventSubject is the subject an audit record of the given type is sent on
func EventSubject(prefix string, eventType storage.EventType) string {
	return prefix + ".events." + strings.ToLower(string(eventType))
}

// MessageSubject is the subject a publish record for topic is sent on
func MessageSubject(prefix, topic string) string {
	return prefix + ".messages." + ToNATSSubject(topic)
}
