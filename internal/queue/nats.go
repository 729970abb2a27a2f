package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const (
	// StreamOutbound is the JetStream stream holding outbound provider work.
	StreamOutbound = "TMINUS_OUTBOUND"

	// SubjectPrefix is the subject prefix for all outbound messages.
	SubjectPrefix = "outbound."

	SubjectDeleteMirror      = SubjectPrefix + "delete_mirror"
	SubjectDeleteUserMirrors = SubjectPrefix + "delete_user_mirrors"
)

// SubjectForType returns the NATS subject for a message type.
func SubjectForType(t MessageType) (string, error) {
	switch t {
	case TypeDeleteMirror:
		return SubjectDeleteMirror, nil
	case TypeDeleteUserMirrors:
		return SubjectDeleteUserMirrors, nil
	}
	return "", fmt.Errorf("invalid message type %q", t)
}

// EnsureStreams creates the outbound stream if it does not already exist.
// Called during server startup when NATS is enabled.
func EnsureStreams(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(StreamOutbound)
	if err == nil {
		return nil // Stream already exists.
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamOutbound,
		Subjects: []string{SubjectPrefix + ">"},
		Storage:  nats.FileStorage,
		// Retain last 100000 messages or 50MB, whichever comes first.
		MaxMsgs:  100000,
		MaxBytes: 50 << 20,
	})
	if err != nil {
		return fmt.Errorf("create %s stream: %w", StreamOutbound, err)
	}

	return nil
}

// NATS publishes outbound messages to JetStream.
type NATS struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

var _ Queue = (*NATS)(nil)

// NewNATS connects to a NATS server and ensures the outbound stream exists.
func NewNATS(url string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("tminus-outbound"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}
	if err := EnsureStreams(js); err != nil {
		nc.Close()
		return nil, err
	}
	return &NATS{nc: nc, js: js}, nil
}

// NewNATSWithConn wraps an existing connection (embedded-server mode).
func NewNATSWithConn(nc *nats.Conn) (*NATS, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}
	if err := EnsureStreams(js); err != nil {
		return nil, err
	}
	return &NATS{nc: nc, js: js}, nil
}

func (q *NATS) Publish(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	msg.stamp()

	subject, err := SubjectForType(msg.Type)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}
	// The message id doubles as the dedupe id, so a republished message
	// within the dedupe window is dropped by the stream.
	_, err = q.js.Publish(subject, data, nats.Context(ctx), nats.MsgId(msg.ID))
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// Close closes the NATS connection.
func (q *NATS) Close() error {
	q.nc.Close()
	return nil
}
