package notification

import (
	"context"
	"encoding/json"
	"log"
	"time"

	alertdomain "plateping-backend/internal/alert/domain"
	alertusecase "plateping-backend/internal/alert/usecase"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// BlockageReport is the event payload published by the report-submission flow.
type BlockageReport struct {
	SenderID         string `json:"sender_id"`
	PlateFingerprint string `json:"plate_fingerprint"`
	Urgency          string `json:"urgency"`
	Message          string `json:"message,omitempty"`
}

// ReportListener consumes blockage-report events from Pub/Sub and turns each
// into an alert plus an initial dispatch.
type ReportListener struct {
	pubsubClient *pubsub.Client
	alertUsecase alertusecase.AlertUsecase
	dispatcher   *Dispatcher
	topicName    string
	subName      string
}

// NewReportListener creates a listener for the given project/topic.
func NewReportListener(projectID, topicName, credentialsFile string, alertUsecase alertusecase.AlertUsecase, dispatcher *Dispatcher) (*ReportListener, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}

	return &ReportListener{
		pubsubClient: client,
		alertUsecase: alertUsecase,
		dispatcher:   dispatcher,
		topicName:    topicName,
		subName:      topicName + "-sub", // Convention: topic-sub
	}, nil
}

// Start blocks receiving report events until ctx is cancelled. Intended to be
// called with `go`.
func (s *ReportListener) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting report listener with topic: %s, subscription: %s", s.topicName, s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic %s does not exist, cannot create subscription", s.topicName)
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (s *ReportListener) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var report BlockageReport
	if err := json.Unmarshal(msg.Data, &report); err != nil {
		log.Printf("[PubSub] Failed to unmarshal report: %v", err)
		return
	}

	alert, err := s.alertUsecase.CreateAlert(report.SenderID, report.PlateFingerprint,
		alertdomain.Urgency(report.Urgency), report.Message, 0)
	if err != nil {
		log.Printf("[PubSub] Failed to create alert from report: %v", err)
		return
	}

	if s.dispatcher == nil || len(alert.Recipients) == 0 {
		return
	}

	var recipients []string
	for _, r := range alert.Recipients {
		recipients = append(recipients, r.UserID)
	}
	if _, err := s.dispatcher.Deliver(ctx, alert, recipients); err != nil {
		// Dispatch failure never fails the report; the escalator retries.
		log.Printf("[PubSub] Dispatch failed for alert %s: %v", alert.ID, err)
	}
}
