package kobosync

import (
	"context"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/survey_backend/config"
)

// SyncOutcomeMessage is the Pub/Sub payload published after every run.
type SyncOutcomeMessage struct {
	CampaignId    int       `json:"campaign_id"`
	SyncLogId     int       `json:"sync_log_id"`
	CorrelationId string    `json:"correlation_id"`
	Status        string    `json:"status"`
	Fetched       int       `json:"fetched"`
	New           int       `json:"new"`
	Updated       int       `json:"updated"`
	ErrorCount    int       `json:"error_count"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

func NewSyncOutcomeMessage(outcome Outcome) SyncOutcomeMessage {
	return SyncOutcomeMessage{
		CampaignId:    outcome.CampaignId,
		SyncLogId:     outcome.SyncLogId,
		CorrelationId: outcome.CorrelationId,
		Status:        string(outcome.Status),
		Fetched:       outcome.Fetched,
		New:           outcome.New,
		Updated:       outcome.Updated,
		ErrorCount:    len(outcome.Errors),
		FailureReason: outcome.FailureReason,
		CompletedAt:   outcome.CompletedAt,
	}
}

// PubSubNotifier publishes run outcomes to a topic so downstream consumers
// (dashboards, alerting) learn about new data.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  string
}

func NewPubSubNotifier(client *pubsub.Client, topic string) *PubSubNotifier {
	return &PubSubNotifier{client: client, topic: topic}
}

func (n *PubSubNotifier) Notify(ctx context.Context, outcome Outcome) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := config.PublishJSON(ctx, n.client, n.topic, NewSyncOutcomeMessage(outcome), map[string]string{
		"campaign_id":    strconv.Itoa(outcome.CampaignId),
		"status":         string(outcome.Status),
		"correlation_id": outcome.CorrelationId,
	})
	return err
}
