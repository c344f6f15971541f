// Package identity maps inbound banking events to internal users.
package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dvloznov/finko-backend/internal/cloudevent"
	"github.com/dvloznov/finko-backend/internal/domain"
)

// Directory looks users up by their registered public key or email address.
// Both methods return "" and a nil error when nothing matches.
type Directory interface {
	FindUserByPublicKey(ctx context.Context, publicKey string) (string, error)
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
}

// RequestContext carries request-level hints that are not part of the event.
type RequestContext struct {
	QueryEmail string
}

// strategy returns the resolved user id, or "" when it has nothing to offer.
type strategy func(ctx context.Context, ev *cloudevent.CloudEvent, rc RequestContext) (string, error)

// Resolver tries the public-key registry first and falls back to email lookup.
type Resolver struct {
	dir          Directory
	defaultEmail string
	strategies   []strategy
}

// NewResolver builds a resolver. defaultEmail is the last email candidate and may be empty.
func NewResolver(dir Directory, defaultEmail string) *Resolver {
	r := &Resolver{dir: dir, defaultEmail: strings.TrimSpace(defaultEmail)}
	r.strategies = []strategy{r.byPublicKey, r.byEmail}
	return r
}

// Resolve returns the owning user id for ev, or domain.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, ev *cloudevent.CloudEvent, rc RequestContext) (string, error) {
	for _, s := range r.strategies {
		userID, err := s(ctx, ev, rc)
		if err != nil {
			return "", err
		}
		if userID != "" {
			return userID, nil
		}
	}
	return "", domain.ErrNotFound
}

func (r *Resolver) byPublicKey(ctx context.Context, ev *cloudevent.CloudEvent, _ RequestContext) (string, error) {
	key := PublicKeyOf(ev)
	if key == "" {
		return "", nil
	}
	userID, err := r.dir.FindUserByPublicKey(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve by public key: %w", err)
	}
	return userID, nil
}

func (r *Resolver) byEmail(ctx context.Context, ev *cloudevent.CloudEvent, rc RequestContext) (string, error) {
	email := r.EmailOf(ev, rc)
	if email == "" {
		return "", nil
	}
	userID, err := r.dir.FindUserIDByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("resolve by email: %w", err)
	}
	return userID, nil
}

// PublicKeyOf returns the banking public key carried by ev, if any.
// A subject without "@" is taken to be the key itself.
func PublicKeyOf(ev *cloudevent.CloudEvent) string {
	if k := ev.DataString("publicKey"); k != "" {
		return k
	}
	if k := ev.DataString("accountKey"); k != "" {
		return k
	}
	if s := strings.TrimSpace(ev.Subject); s != "" && !strings.Contains(s, "@") {
		return s
	}
	return ""
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// EmailOf returns the first email candidate for ev in lookup order.
func (r *Resolver) EmailOf(ev *cloudevent.CloudEvent, rc RequestContext) string {
	candidates := []string{
		ev.DataString("email"),
		ev.DataString("userEmail"),
		subjectEmail(ev.Subject),
		strings.TrimSpace(rc.QueryEmail),
		r.defaultEmail,
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

func subjectEmail(subject string) string {
	subject = strings.TrimSpace(subject)
	if strings.Contains(subject, "@") && emailPattern.MatchString(subject) {
		return subject
	}
	return ""
}
