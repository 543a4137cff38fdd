package eventbus

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/modernmen/pulse/pkg/models"
)

// Topic is the watermill topic mirrored events are published on.
const Topic = "pulse.events"

// Metadata keys set on mirrored messages.
const (
	SignatureMetadataKey = "signature"
	EventTypeMetadataKey = "event_type"
)

// Mirror publishes every emitted event to a watermill publisher so external
// consumers can tap the stream without touching the synchronous core.
type Mirror struct {
	publisher message.Publisher
}

func NewMirror(publisher message.Publisher) *Mirror {
	return &Mirror{publisher: publisher}
}

// NewGoChannelMirror builds a mirror backed by an in-process gochannel
// pubsub and returns the subscriber side for consumers.
func NewGoChannelMirror(logger watermill.LoggerAdapter) (*Mirror, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 1000,
			Persistent:          false,
		},
		logger,
	)

	return NewMirror(pubSub), pubSub
}

// Publish marshals the event and sends it on Topic.
func (m *Mirror) Publish(event *models.SystemEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set(SignatureMetadataKey, event.Signature())
	msg.Metadata.Set(EventTypeMetadataKey, string(event.Type))

	return m.publisher.Publish(Topic, msg)
}

// Close shuts the underlying publisher down.
func (m *Mirror) Close() error {
	return m.publisher.Close()
}
