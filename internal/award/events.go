package award

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"rfqs/models"
)

const (
	awardStream       = "RFQ_AWARDS"
	awardSubjectSpace = "rfq.awards.*"
	publishAttempts   = 3
)

// NATSPublisher delivers award events through JetStream with at-least-once
// semantics. The order service dedupes on rfqId downstream.
type NATSPublisher struct {
	js  jetstream.JetStream
	log *logrus.Logger
}

func NewNATSPublisher(nc *nats.Conn, log *logrus.Logger) (*NATSPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        awardStream,
		Description: "Stream for RFQ award events consumed by the order service",
		Subjects:    []string{awardSubjectSpace},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &NATSPublisher{js: js, log: log}, nil
}

// PublishAward publishes with a few in-process retries. JetStream publish
// waits for the server ack, so a nil return means the event is persisted.
func (p *NATSPublisher) PublishAward(ctx context.Context, ev models.AwardEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal award event: %w", err)
	}
	subject := fmt.Sprintf("rfq.awards.%s", ev.RFQID)

	var lastErr error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		ack, err := p.js.Publish(ctx, subject, data)
		if err == nil {
			p.log.WithFields(logrus.Fields{
				"subject": subject,
				"seq":     ack.Sequence,
			}).Info("published award event")
			return nil
		}
		lastErr = err
		p.log.WithError(err).WithField("attempt", attempt).Warn("award event publish failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return fmt.Errorf("failed to publish award event after %d attempts: %w", publishAttempts, lastErr)
}
