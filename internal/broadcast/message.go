package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/pscheid92/activate/internal/domain"
)

// Event names on the wire, as display clients subscribe to them.
const (
	EventContentUpdate = "contentUpdate"
	EventColorUpdate   = "pixelMapColorUpdate"
)

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type contentUpdate struct {
	VisualizerID string         `json:"visualizerId"`
	MediaContent domain.Payload `json:"mediaContent"`
}

type colorUpdate struct {
	VisualizerID string `json:"visualizerId"`
	NewColor     string `json:"newColor"`
}

func EncodeContentUpdate(channelID string, payload domain.Payload) ([]byte, error) {
	data, err := json.Marshal(envelope{
		Event: EventContentUpdate,
		Data:  contentUpdate{VisualizerID: channelID, MediaContent: payload},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal content update: %w", err)
	}
	return data, nil
}

func EncodeColorUpdate(channelID, color string) ([]byte, error) {
	data, err := json.Marshal(envelope{
		Event: EventColorUpdate,
		Data:  colorUpdate{VisualizerID: channelID, NewColor: color},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal color update: %w", err)
	}
	return data, nil
}

// Snapshot is what a newly joined client receives: the channel's payload and,
// while it animates, the color currently shown to every other viewer.
type Snapshot struct {
	Payload domain.Payload
	Color   string
}

// Messages encodes the snapshot as the wire messages to send to one client.
func (s Snapshot) Messages(channelID string) ([][]byte, error) {
	content, err := EncodeContentUpdate(channelID, s.Payload)
	if err != nil {
		return nil, err
	}
	msgs := [][]byte{content}

	if s.Color != "" {
		color, err := EncodeColorUpdate(channelID, s.Color)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, color)
	}
	return msgs, nil
}
