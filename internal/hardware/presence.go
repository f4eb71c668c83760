package hardware

import (
	"encoding/json"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// presenceTopicFilter matches every user's presence announcements; userID is
// extracted from the topic's second segment.
const presenceTopicFilter = "glasses/+/presence"

// presenceMessage is what a wearable host publishes to announce that a
// device has connected or disconnected.
type presenceMessage struct {
	Event string `json:"event"` // "connect" or "disconnect"
	Caps  struct {
		HasCamera  bool   `json:"hasCamera"`
		HasDisplay bool   `json:"hasDisplay"`
		HasSpeaker bool   `json:"hasSpeaker"`
		ModelName  string `json:"modelName"`
	} `json:"capabilities"`
	Reason string `json:"reason"`
}

// PresenceHandlers receives connect/disconnect notifications parsed off the
// presence topic.
type PresenceHandlers struct {
	OnConnect    func(userID string, caps Capabilities)
	OnDisconnect func(userID string, reason string)
}

// WatchPresence subscribes client to every user's presence topic and
// dispatches parsed connect/disconnect events to handlers. It is the glue
// between the wearable host's MQTT handshake and the lifecycle controller,
// which never talks to MQTT directly.
func WatchPresence(client mqtt.Client, handlers PresenceHandlers, log zerolog.Logger) error {
	token := client.Subscribe(presenceTopicFilter, 1, func(_ mqtt.Client, msg mqtt.Message) {
		userID := extractUserID(msg.Topic())
		if userID == "" {
			return
		}
		var m presenceMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Debug().Err(err).Str("topic", msg.Topic()).Msg("malformed presence payload")
			return
		}
		switch m.Event {
		case "connect":
			if handlers.OnConnect != nil {
				handlers.OnConnect(userID, Capabilities{
					HasCamera:  m.Caps.HasCamera,
					HasDisplay: m.Caps.HasDisplay,
					HasSpeaker: m.Caps.HasSpeaker,
					ModelName:  m.Caps.ModelName,
				})
			}
		case "disconnect":
			if handlers.OnDisconnect != nil {
				handlers.OnDisconnect(userID, m.Reason)
			}
		default:
			log.Debug().Str("event", m.Event).Msg("unrecognized presence event")
		}
	})
	token.Wait()
	return token.Error()
}

// extractUserID pulls the userID segment out of "glasses/<userID>/presence".
func extractUserID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "glasses" || parts[2] != "presence" {
		return ""
	}
	return parts[1]
}
