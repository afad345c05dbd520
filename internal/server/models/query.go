package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/common"
)

// Generation list filters.
const (
	FilterAll            = "all"
	FilterRecent         = "recent"
	FilterHighRecipients = "high-recipients"
	FilterWithRank       = "with-rank"
	FilterWithoutRank    = "without-rank"
)

// Generation list sort keys.
const (
	SortDate          = "date"
	SortRecipients    = "recipients"
	SortCertificateID = "certificateId"
)

const (
	RecentWindow            = 30 * 24 * time.Hour
	HighRecipientsThreshold = 50

	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100

	// MaxPage keeps (Page-1)*Limit inside int for any accepted Limit.
	MaxPage = math.MaxInt / MaxLimit
)

// GenerationQuery selects and orders generation records.
type GenerationQuery struct {
	GeneratedBy string
	Filter      string
	Sort        string
	Desc        bool
	Page        int
	Limit       int
	Search      string

	// Now anchors the "recent" filter; zero means time.Now().
	Now time.Time
}

// Normalize fills defaults and rejects unknown values.
func (q *GenerationQuery) Normalize() error {
	q.Filter = strings.TrimSpace(q.Filter)
	q.Sort = strings.TrimSpace(q.Sort)
	q.Search = strings.TrimSpace(q.Search)

	var details []string
	switch q.Filter {
	case "":
		q.Filter = FilterAll
	case FilterAll, FilterRecent, FilterHighRecipients, FilterWithRank, FilterWithoutRank:
	default:
		details = append(details, fmt.Sprintf("unknown filter %q", q.Filter))
	}
	switch q.Sort {
	case "":
		q.Sort = SortDate
	case SortDate, SortRecipients, SortCertificateID:
	default:
		details = append(details, fmt.Sprintf("unknown sort %q", q.Sort))
	}
	if q.Page > MaxPage {
		details = append(details, fmt.Sprintf("page must not exceed %d", MaxPage))
	}
	if len(details) > 0 {
		return common.NewValidationError(details...)
	}

	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Now.IsZero() {
		q.Now = time.Now()
	}
	return nil
}

// Offset is the zero-based index of the first record on the page.
func (q *GenerationQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Matches applies the filter to one record. Repositories without a query
// language use it directly; SQL repositories express the same predicate.
func (q *GenerationQuery) Matches(g *GenerationRecord) bool {
	if q.GeneratedBy != "" && g.GeneratedBy != q.GeneratedBy {
		return false
	}
	switch q.Filter {
	case FilterRecent:
		return !g.CreatedAt.Before(q.Now.Add(-RecentWindow))
	case FilterHighRecipients:
		return g.RecipientCount >= HighRecipientsThreshold
	case FilterWithRank:
		return g.HasRank
	case FilterWithoutRank:
		return !g.HasRank
	}
	return true
}

// Less orders two records by the query's sort key and direction. Ties fall
// back to id so paging is stable.
func (q *GenerationQuery) Less(a, b *GenerationRecord) bool {
	var c int
	switch q.Sort {
	case SortRecipients:
		c = a.RecipientCount - b.RecipientCount
	case SortCertificateID:
		c = strings.Compare(a.ConfigID, b.ConfigID)
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if q.Desc {
		return c > 0
	}
	return c < 0
}

// Page is a slice of results plus paging metadata.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// Paginate cuts items according to q.
func Paginate[T any](items []T, q *GenerationQuery) Page[T] {
	p := Page[T]{Items: []T{}, Total: len(items), Page: q.Page, Limit: q.Limit}
	if q.Limit > 0 {
		p.TotalPages = (len(items) + q.Limit - 1) / q.Limit
	}
	if q.Page > MaxPage || q.Limit > MaxLimit {
		return p
	}
	start := q.Offset()
	if start < 0 || start >= len(items) {
		return p
	}
	end := min(start+q.Limit, len(items))
	p.Items = items[start:end]
	return p
}
