package message

import "time"

// Transport names carried in Message.Transport
const (
	TransportMQTT = "mqtt"
	TransportNATS = "nats"
)

// Message is one payload received from a broker, in MQTT topic form
type Message struct {
	// Topic is always '/'-separated, whatever the transport
	Topic      string
	Payload    []byte
	Transport  string
	ReceivedAt time.Time
}

// New stamps a message with the current time
func New(transport, topic string, payload []byte) Message {
	return Message{
		Topic:      topic,
		Payload:    payload,
		Transport:  transport,
		ReceivedAt: time.Now(),
	}
}
