package gmail

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Reasons a push delivery is acknowledged without doing any work.
const (
	SkipNoData     = "no data"
	SkipIncomplete = "incomplete notification"
	SkipMalformed  = "malformed notification"
)

// PushEnvelope is the body Pub/Sub POSTs to a push subscription.
type PushEnvelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Notification is the payload Gmail publishes when a watched mailbox changes.
type Notification struct {
	EmailAddress string
	HistoryID    uint64
	MessageID    string
}

// SkipError means the delivery carries nothing to process.
type SkipError struct {
	Reason string
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *SkipError) Unwrap() error { return e.Err }

// DecodePush reads a push delivery. Every failure is a *SkipError: Pub/Sub
// redelivers anything not acknowledged, and a bad payload never improves.
func DecodePush(r io.Reader) (*Notification, error) {
	var env PushEnvelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, &SkipError{Reason: SkipMalformed, Err: err}
	}
	if env.Message.Data == "" {
		return nil, &SkipError{Reason: SkipNoData}
	}

	raw := []byte(decodeBase64(env.Message.Data))
	if len(raw) == 0 {
		return nil, &SkipError{Reason: SkipMalformed, Err: errors.New("data is not base64")}
	}

	var payload struct {
		EmailAddress string          `json:"emailAddress"`
		HistoryID    json.RawMessage `json:"historyId"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &SkipError{Reason: SkipMalformed, Err: err}
	}

	historyID, err := parseHistoryID(payload.HistoryID)
	if err != nil || historyID == 0 || strings.TrimSpace(payload.EmailAddress) == "" {
		return nil, &SkipError{Reason: SkipIncomplete, Err: err}
	}

	return &Notification{
		EmailAddress: strings.TrimSpace(payload.EmailAddress),
		HistoryID:    historyID,
		MessageID:    env.Message.MessageID,
	}, nil
}

// parseHistoryID accepts the id as a JSON number or a numeric string.
func parseHistoryID(raw json.RawMessage) (uint64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("historyId missing")
	}
	s := string(raw)
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
	}
	return strconv.ParseUint(strings.TrimSpace(s), 10, 64)
}

// EncodePush builds a push body for n. Used by the CLI and tests.
func EncodePush(n Notification) ([]byte, error) {
	data, err := json.Marshal(map[string]any{
		"emailAddress": n.EmailAddress,
		"historyId":    n.HistoryID,
	})
	if err != nil {
		return nil, err
	}
	var env PushEnvelope
	env.Message.Data = base64.StdEncoding.EncodeToString(data)
	env.Message.MessageID = n.MessageID
	return json.Marshal(env)
}
