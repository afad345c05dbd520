package models

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/certkeeper/internal/common"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Recipient is one certificate addressee. It only ever leaves the server
// encrypted inside a GenerationRecord payload, or to a caller who supplied
// the payload password.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Rank  string `json:"rank,omitempty"`
	UUID  string `json:"uuid,omitempty"`
}

// NormalizeRecipients trims names and ranks, lower-cases emails and checks
// every entry. All problems are reported together in a *common.ValidationError.
// When keepRank is false ranks are dropped.
func NormalizeRecipients(in []Recipient, keepRank bool) ([]Recipient, error) {
	if len(in) == 0 {
		return nil, common.NewValidationError("at least one recipient is required")
	}

	out := make([]Recipient, len(in))
	var details []string
	for i, r := range in {
		r.Name = strings.TrimSpace(r.Name)
		r.Email = strings.ToLower(strings.TrimSpace(r.Email))
		r.Rank = strings.TrimSpace(r.Rank)
		r.UUID = strings.TrimSpace(r.UUID)

		if r.Name == "" {
			details = append(details, fmt.Sprintf("recipients[%d]: name is required", i))
		}
		if r.Email != "" && !emailRe.MatchString(r.Email) {
			details = append(details, fmt.Sprintf("recipients[%d]: invalid email %q", i, r.Email))
		}
		if !keepRank {
			r.Rank = ""
		}
		out[i] = r
	}
	if len(details) > 0 {
		return nil, common.NewValidationError(details...)
	}
	return out, nil
}

// AnyRank reports whether at least one recipient carries a rank.
func AnyRank(rs []Recipient) bool {
	for _, r := range rs {
		if r.Rank != "" {
			return true
		}
	}
	return false
}
