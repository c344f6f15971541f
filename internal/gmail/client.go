package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const me = "me"

var (
	// ErrMessageNotFound is returned when a message no longer exists.
	ErrMessageNotFound = errors.New("gmail message not found")
	// ErrHistoryNotFound is returned when the start history id is too old
	// or otherwise unknown to Gmail.
	ErrHistoryNotFound = errors.New("gmail history not found")
)

// WatchResult is the outcome of registering a push subscription.
type WatchResult struct {
	HistoryID  uint64
	Expiration time.Time
}

// MessageMetadata is the cheap header-only view of a message.
type MessageMetadata struct {
	ID   string
	From string
}

// Message is a fully fetched message with its decoded text body.
type Message struct {
	ID      string
	From    string
	Subject string
	Snippet string
	Body    string
	Date    string // YYYY-MM-DD, empty when unknown
}

// Client calls the Gmail API on behalf of one mailbox per call.
type Client struct {
	tokens TokenProvider
	opts   []option.ClientOption
}

// NewClient creates a client. opts are appended to every service
// construction, which lets tests point the client at a local server.
func NewClient(tokens TokenProvider, opts ...option.ClientOption) *Client {
	return &Client{tokens: tokens, opts: opts}
}

func (c *Client) service(ctx context.Context, refreshToken string) (*gmailapi.Service, error) {
	accessToken, err := c.tokens.AccessToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	opts := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	}, c.opts...)

	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// Watch registers a push subscription to topic for the mailbox.
func (c *Client) Watch(ctx context.Context, refreshToken, topic string) (*WatchResult, error) {
	svc, err := c.service(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("Watch: %w", err)
	}

	resp, err := svc.Users.Watch(me, &gmailapi.WatchRequest{TopicName: topic}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("Watch: %w", err)
	}
	if resp.HistoryId == 0 || resp.Expiration == 0 {
		return nil, errors.New("Watch: gmail returned an incomplete watch response")
	}

	return &WatchResult{
		HistoryID:  resp.HistoryId,
		Expiration: time.UnixMilli(resp.Expiration).UTC(),
	}, nil
}

// StopWatch cancels the mailbox's push subscription.
func (c *Client) StopWatch(ctx context.Context, refreshToken string) error {
	svc, err := c.service(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("StopWatch: %w", err)
	}
	if err := svc.Users.Stop(me).Context(ctx).Do(); err != nil {
		return fmt.Errorf("StopWatch: %w", err)
	}
	return nil
}

// ListHistoryMessageIDs returns ids of messages added since startHistoryID,
// in the order Gmail reports them. Messages deleted within the same walk
// are left out.
func (c *Client) ListHistoryMessageIDs(ctx context.Context, refreshToken string, startHistoryID uint64) ([]string, error) {
	svc, err := c.service(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("ListHistoryMessageIDs: %w", err)
	}

	var added []string
	seen := make(map[string]bool)
	deleted := make(map[string]bool)

	call := svc.Users.History.List(me).
		StartHistoryId(startHistoryID).
		HistoryTypes("messageAdded", "messageDeleted")

	err = call.Pages(ctx, func(page *gmailapi.ListHistoryResponse) error {
		for _, record := range page.History {
			for _, m := range record.MessagesAdded {
				if m.Message != nil && m.Message.Id != "" && !seen[m.Message.Id] {
					seen[m.Message.Id] = true
					added = append(added, m.Message.Id)
				}
			}
			for _, m := range record.MessagesDeleted {
				if m.Message != nil && m.Message.Id != "" {
					deleted[m.Message.Id] = true
				}
			}
		}
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrHistoryNotFound
		}
		return nil, fmt.Errorf("ListHistoryMessageIDs: %w", err)
	}

	ids := make([]string, 0, len(added))
	for _, id := range added {
		if !deleted[id] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// GetMessageMetadata fetches only the From header of a message.
func (c *Client) GetMessageMetadata(ctx context.Context, refreshToken, messageID string) (*MessageMetadata, error) {
	svc, err := c.service(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("GetMessageMetadata: %w", err)
	}

	msg, err := svc.Users.Messages.Get(me, messageID).Format("metadata").MetadataHeaders("From").Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("GetMessageMetadata: %w", err)
	}
	if msg.Id == "" {
		return nil, ErrMessageNotFound
	}

	return &MessageMetadata{ID: msg.Id, From: header(msg.Payload, "From")}, nil
}

// GetMessage fetches a message with its headers and decoded body.
func (c *Client) GetMessage(ctx context.Context, refreshToken, messageID string) (*Message, error) {
	svc, err := c.service(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("GetMessage: %w", err)
	}

	msg, err := svc.Users.Messages.Get(me, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("GetMessage: %w", err)
	}
	if msg.Id == "" {
		return nil, ErrMessageNotFound
	}

	return &Message{
		ID:      msg.Id,
		From:    header(msg.Payload, "From"),
		Subject: header(msg.Payload, "Subject"),
		Snippet: msg.Snippet,
		Body:    messageBody(msg.Payload),
		Date:    messageDate(msg),
	}, nil
}

// GetProfileEmail returns the address of the authorized mailbox.
func (c *Client) GetProfileEmail(ctx context.Context, refreshToken string) (string, error) {
	svc, err := c.service(ctx, refreshToken)
	if err != nil {
		return "", fmt.Errorf("GetProfileEmail: %w", err)
	}

	profile, err := svc.Users.GetProfile(me).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("GetProfileEmail: %w", err)
	}
	if profile.EmailAddress == "" {
		return "", errors.New("GetProfileEmail: gmail profile has no email address")
	}
	return profile.EmailAddress, nil
}

func header(part *gmailapi.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) && h.Value != "" {
			return h.Value
		}
	}
	return ""
}

// messageDate is the sender's calendar day from the Date header, falling back
// to Gmail's internal date in UTC.
func messageDate(msg *gmailapi.Message) string {
	if d := header(msg.Payload, "Date"); d != "" {
		if t, err := mail.ParseDate(d); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	if msg.InternalDate > 0 {
		return time.UnixMilli(msg.InternalDate).UTC().Format(time.DateOnly)
	}
	return ""
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
