// Package bankprofile decides which bank, if any, sent an email and carries
// the validation rules for administrator-managed profiles.
package bankprofile

import (
	"strings"

	"github.com/dvloznov/finko-backend/internal/domain"
)

// Match returns the first profile with a sender pattern contained in the From
// header. Comparison is case-insensitive. Profile order decides ties: when two
// profiles both match, the earlier one wins.
func Match(from string, profiles []domain.BankEmailProfile) (*domain.BankEmailProfile, bool) {
	header := strings.ToLower(strings.TrimSpace(from))
	if header == "" {
		return nil, false
	}

	for i := range profiles {
		for _, pattern := range profiles[i].SenderPatterns {
			pattern = strings.ToLower(strings.TrimSpace(pattern))
			if pattern == "" {
				continue
			}
			if strings.Contains(header, pattern) {
				return &profiles[i], true
			}
		}
	}
	return nil, false
}
