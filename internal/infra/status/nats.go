// Package status publishes rendered status text to the messaging UI process
// through JetStream. Each message carries the display handle the text
// belongs to, so the subscriber can edit the right on-screen message.
package status

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

type update struct {
	Handle string `json:"handle"`
	Text   string `json:"text"`
}

type natsSink struct {
	js      nats.JetStreamContext
	subject string
}

func NewNATSSink(js nats.JetStreamContext, subject string) *natsSink {
	return &natsSink{
		js:      js,
		subject: subject,
	}
}

func (s *natsSink) Publish(ctx context.Context, handle, text string) error {
	if handle == "" {
		return fmt.Errorf("empty status handle")
	}

	data, err := json.Marshal(update{Handle: handle, Text: text})
	if err != nil {
		return fmt.Errorf("status marshal: %w", err)
	}

	msg := &nats.Msg{
		Subject: s.subject,
		Data:    data,
		Header:  nats.Header{},
	}

	if _, err := s.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("status publish %s: %w", handle, err)
	}
	return nil
}
