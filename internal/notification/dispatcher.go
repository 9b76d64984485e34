package notification

import (
	"context"
	"log"
	"strconv"
	"time"

	alertdomain "plateping-backend/internal/alert/domain"
	authdomain "plateping-backend/internal/auth/domain"
	"plateping-backend/pkg/push"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// TokenStore is the device-token lookup and pruning the dispatcher needs.
type TokenStore interface {
	GetTokensByUserID(userID string) ([]authdomain.DeviceToken, error)
	DeleteTokens(userID string, tokens []string) error
}

// DeliveryMarker records that a recipient received at least one push.
type DeliveryMarker interface {
	MarkDelivered(alertID, userID string) error
}

// Sender is the outbound push protocol boundary.
type Sender interface {
	Preflight(ctx context.Context) error
	Send(ctx context.Context, deviceToken string, msg push.Message) push.Result
}

// DeviceResult is the audit detail for one device send.
type DeviceResult struct {
	UserID  string `json:"user_id"`
	Token   string `json:"-"`
	Outcome string `json:"outcome"`
	RawCode string `json:"raw_code,omitempty"`
}

// DeliveryReport aggregates one dispatch batch.
type DeliveryReport struct {
	AlertID        string         `json:"alert_id"`
	Step           int            `json:"step"`
	Targeted       int            `json:"targeted"`
	Succeeded      int            `json:"succeeded"`
	InvalidRemoved int            `json:"invalid_removed"`
	Devices        []DeviceResult `json:"devices"`
}

// Dispatcher fans one alert out to every registered device of a recipient
// set. Devices are contacted concurrently with bounded parallelism and a
// provider rate limit; one device's failure never blocks or fails another.
type Dispatcher struct {
	tokens  TokenStore
	marker  DeliveryMarker
	sender  Sender
	limiter *rate.Limiter
	workers int
	timeout time.Duration
}

// NewDispatcher creates a dispatcher. ratePerSec bounds outbound requests to
// the provider, workers bounds in-flight sends.
func NewDispatcher(tokens TokenStore, marker DeliveryMarker, sender Sender, workers, ratePerSec int, perCallTimeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 16
	}
	if ratePerSec <= 0 {
		ratePerSec = 100
	}
	if perCallTimeout <= 0 {
		perCallTimeout = 10 * time.Second
	}
	return &Dispatcher{
		tokens:  tokens,
		marker:  marker,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		workers: workers,
		timeout: perCallTimeout,
	}
}

type target struct {
	userID string
	token  string
}

// Deliver sends the alert's current escalation step to every device of every
// recipient. A credential failure aborts the whole batch before any send and
// leaves alert and recipient state untouched. Invalid tokens are pruned with
// one update per affected user; every recipient with at least one successful
// delivery is marked delivered. Transient failures are reported, not retried;
// the next escalation step naturally re-attempts.
func (d *Dispatcher) Deliver(ctx context.Context, alert *alertdomain.Alert, recipientIDs []string) (*DeliveryReport, error) {
	report := &DeliveryReport{AlertID: alert.ID, Step: alert.EscalationStep}
	if len(recipientIDs) == 0 {
		return report, nil
	}

	if err := d.sender.Preflight(ctx); err != nil {
		log.Printf("[Dispatch] Credential preflight failed for alert %s: %v", alert.ID, err)
		return nil, err
	}

	var targets []target
	for _, userID := range recipientIDs {
		tokens, err := d.tokens.GetTokensByUserID(userID)
		if err != nil {
			log.Printf("[Dispatch] Error loading device tokens for user %s: %v", userID, err)
			continue
		}
		for _, t := range tokens {
			targets = append(targets, target{userID: userID, token: t.Token})
		}
	}
	report.Targeted = len(targets)
	if len(targets) == 0 {
		log.Printf("[Dispatch] No device tokens for alert %s, skipping", alert.ID)
		return report, nil
	}

	rendered := RenderEscalation(alert.Urgency, alert.EscalationStep, alert.Message)
	msg := push.Message{
		Title:    rendered.Title,
		Body:     rendered.Body,
		Priority: rendered.Priority,
		Sound:    rendered.Sound,
		Color:    rendered.Color,
		// Tag keyed by alert id: a re-escalation replaces the previous
		// notification on the device instead of stacking.
		Tag: alert.ID,
		Data: map[string]string{
			"type":     "blockage_alert",
			"alert_id": alert.ID,
			"urgency":  string(alert.Urgency),
			"step":     strconv.Itoa(alert.EscalationStep),
		},
	}

	results := make([]push.Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i := range targets {
		i := i
		g.Go(func() error {
			if err := d.limiter.Wait(gctx); err != nil {
				results[i] = push.Result{Outcome: push.OutcomeTransient, Err: err}
				return nil
			}
			callCtx, cancel := context.WithTimeout(gctx, d.timeout)
			defer cancel()
			results[i] = d.sender.Send(callCtx, targets[i].token, msg)
			return nil
		})
	}
	_ = g.Wait()

	// Per-device outcomes: collect invalid tokens per user and the set of
	// recipients with at least one success.
	invalidByUser := make(map[string][]string)
	deliveredUsers := make(map[string]bool)
	for i, res := range results {
		t := targets[i]
		report.Devices = append(report.Devices, DeviceResult{
			UserID:  t.userID,
			Token:   t.token,
			Outcome: res.Outcome.String(),
			RawCode: res.RawCode,
		})
		switch res.Outcome {
		case push.OutcomeSuccess:
			report.Succeeded++
			deliveredUsers[t.userID] = true
		case push.OutcomeInvalidToken:
			invalidByUser[t.userID] = append(invalidByUser[t.userID], t.token)
		default:
			log.Printf("[Dispatch] Transient failure for alert %s user %s: %v", alert.ID, t.userID, res.Err)
		}
	}

	for userID, tokens := range invalidByUser {
		if err := d.tokens.DeleteTokens(userID, tokens); err != nil {
			log.Printf("[Dispatch] Error pruning %d dead tokens for user %s: %v", len(tokens), userID, err)
			continue
		}
		report.InvalidRemoved += len(tokens)
	}

	for userID := range deliveredUsers {
		if err := d.marker.MarkDelivered(alert.ID, userID); err != nil {
			log.Printf("[Dispatch] Error marking alert %s delivered for user %s: %v", alert.ID, userID, err)
		}
	}

	log.Printf("[Dispatch] Alert %s step %d: %d targeted, %d succeeded, %d invalid removed",
		alert.ID, alert.EscalationStep, report.Targeted, report.Succeeded, report.InvalidRemoved)
	return report, nil
}
