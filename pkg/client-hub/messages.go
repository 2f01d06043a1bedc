package clienthub

// MessageType enumerates the closed set of page<->worker message kinds.
// Adding a kind means adding a constant here and a case to dispatch.
type MessageType string

const (
	// worker -> page
	MsgUpdateAvailable MessageType = "UPDATE_AVAILABLE"
	MsgActivated       MessageType = "SW_ACTIVATED"
	MsgReady           MessageType = "SW_READY"
	MsgPong            MessageType = "PONG"

	// page -> worker
	MsgClearUpdates  MessageType = "CLEAR_UPDATES"
	MsgNetworkStatus MessageType = "NETWORK_STATUS"
	MsgPing          MessageType = "PING"
)

// Message is the wire format for both directions of the channel.
// Fields other than Type are only set for some message kinds.
type Message struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
	IsOnline  *bool       `json:"isOnline,omitempty"`
}
