package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultEndpoint = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

// Priority selects how aggressively the platform wakes the device.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Message is one push notification for a single device: human-visible
// notification text plus a structured data payload. Tag groups repeated
// escalations so they replace rather than stack on the device.
type Message struct {
	Title    string
	Body     string
	Priority Priority
	Sound    string
	Color    string
	Tag      string
	Data     map[string]string
}

// Outcome is the closed classification of a per-device send. The provider's
// raw error code is kept alongside for audit logging only.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeInvalidToken
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidToken:
		return "invalid_token"
	default:
		return "transient"
	}
}

// Result is the outcome of one device send.
type Result struct {
	Outcome Outcome
	RawCode string // provider error code, empty on success
	Err     error
}

// Client sends push notifications over the FCM HTTP v1 protocol, one HTTPS
// call per device.
type Client struct {
	creds      *Credentials
	httpClient *http.Client
	sendURL    string
}

// NewClient creates a push client for the given project. endpoint, when
// non-empty, overrides the provider URL (used by tests); it may carry a %s
// placeholder for the project id.
func NewClient(creds *Credentials, projectID, endpoint string, timeout time.Duration) *Client {
	if projectID == "" {
		projectID = creds.ProjectID()
	}
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	sendURL := endpoint
	if strings.Contains(endpoint, "%s") {
		sendURL = fmt.Sprintf(endpoint, projectID)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		creds:      creds,
		httpClient: &http.Client{Timeout: timeout},
		sendURL:    sendURL,
	}
}

// Preflight resolves credentials before a batch. A *CredentialError here
// means no device was contacted.
func (c *Client) Preflight(ctx context.Context) error {
	_, err := c.creds.AccessToken(ctx)
	return err
}

// Wire structures for the FCM v1 send request.
type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification *fcmNotification  `json:"notification,omitempty"`
	Android      *fcmAndroidConfig `json:"android,omitempty"`
	APNS         *fcmAPNSConfig    `json:"apns,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroidConfig struct {
	Priority     string                  `json:"priority,omitempty"` // NORMAL or HIGH
	Notification *fcmAndroidNotification `json:"notification,omitempty"`
}

type fcmAndroidNotification struct {
	Sound string `json:"sound,omitempty"`
	Color string `json:"color,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

type fcmAPNSConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
	Payload *fcmAPNSPayload   `json:"payload,omitempty"`
}

type fcmAPNSPayload struct {
	APS fcmAPSBlock `json:"aps"`
}

type fcmAPSBlock struct {
	Sound    string `json:"sound,omitempty"`
	ThreadID string `json:"thread-id,omitempty"`
}

type fcmErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// Send delivers one message to one device token and classifies the outcome.
// A timed-out or failed connection is a transient failure, never invalid-token.
func (c *Client) Send(ctx context.Context, deviceToken string, msg Message) Result {
	token, err := c.creds.AccessToken(ctx)
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: err}
	}

	androidPriority := "NORMAL"
	apnsPriority := "5"
	if msg.Priority == PriorityHigh {
		androidPriority = "HIGH"
		apnsPriority = "10"
	}

	payload := fcmRequest{
		Message: fcmMessage{
			Token:        deviceToken,
			Notification: &fcmNotification{Title: msg.Title, Body: msg.Body},
			Android: &fcmAndroidConfig{
				Priority: androidPriority,
				Notification: &fcmAndroidNotification{
					Sound: msg.Sound,
					Color: msg.Color,
					Tag:   msg.Tag,
				},
			},
			APNS: &fcmAPNSConfig{
				Headers: map[string]string{"apns-priority": apnsPriority},
				Payload: &fcmAPNSPayload{
					APS: fcmAPSBlock{Sound: msg.Sound, ThreadID: msg.Tag},
				},
			},
			Data: msg.Data,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{Outcome: OutcomeTransient, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return Result{Outcome: OutcomeSuccess}
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	code := providerErrorCode(raw)
	outcome := classify(code)
	return Result{
		Outcome: outcome,
		RawCode: code,
		Err:     fmt.Errorf("push send failed: status %d code %s", resp.StatusCode, code),
	}
}

func providerErrorCode(body []byte) string {
	var parsed fcmErrorResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	for _, d := range parsed.Error.Details {
		if d.ErrorCode != "" {
			return d.ErrorCode
		}
	}
	return parsed.Error.Status
}

// classify maps the provider's string error codes onto the closed outcome
// enumeration. Only codes meaning the token is permanently dead count as
// invalid; everything else is transient and left for the next escalation.
func classify(code string) Outcome {
	switch code {
	case "UNREGISTERED", "NOT_FOUND", "SENDER_ID_MISMATCH":
		return OutcomeInvalidToken
	}
	return OutcomeTransient
}
