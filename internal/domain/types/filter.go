package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/leadrank/internal/domain/model"
)

// Page size bounds.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// ErrInvalidFilter is returned for filters that cannot select anything
// meaningful.
var ErrInvalidFilter = errors.New("invalid lead filter")

// LeadFilter narrows and pages an owner's rank-ordered lead list. Nil and
// zero fields do not filter.
type LeadFilter struct {
	// Search matches name, title or company, case-insensitively.
	Search         string
	MinScore       *int
	MaxScore       *int
	Tier           model.Tier
	HasPublication *bool
	// Page is 1-based.
	Page int
	Size int
}

// Validate checks bounds and fills in paging defaults.
func (f *LeadFilter) Validate() error {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Size == 0 {
		f.Size = DefaultPageSize
	}
	if f.Page < 1 {
		return fmt.Errorf("%w: page must be at least 1, got %d", ErrInvalidFilter, f.Page)
	}
	if f.Size < 1 || f.Size > MaxPageSize {
		return fmt.Errorf("%w: size must be in [1,%d], got %d", ErrInvalidFilter, MaxPageSize, f.Size)
	}
	for _, v := range []*int{f.MinScore, f.MaxScore} {
		if v != nil && (*v < model.MinScore || *v > model.MaxScore) {
			return fmt.Errorf("%w: score bound %d outside [%d,%d]", ErrInvalidFilter, *v, model.MinScore, model.MaxScore)
		}
	}
	if f.MinScore != nil && f.MaxScore != nil && *f.MinScore > *f.MaxScore {
		return fmt.Errorf("%w: min_score %d above max_score %d", ErrInvalidFilter, *f.MinScore, *f.MaxScore)
	}
	switch f.Tier {
	case "", model.TierHigh, model.TierMedium, model.TierLow, model.TierUnscored:
	default:
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidFilter, f.Tier)
	}
	return nil
}

// Match reports whether l passes every set criterion.
func (f LeadFilter) Match(l model.Lead) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(l.Name), q) &&
			!strings.Contains(strings.ToLower(l.Attributes.Title), q) &&
			!strings.Contains(strings.ToLower(l.Attributes.Company), q) {
			return false
		}
	}
	if f.MinScore != nil && l.Score < *f.MinScore {
		return false
	}
	if f.MaxScore != nil && l.Score > *f.MaxScore {
		return false
	}
	if f.Tier != "" && l.Tier != f.Tier {
		return false
	}
	if f.HasPublication != nil && l.Attributes.RecentPublication != *f.HasPublication {
		return false
	}
	return true
}

// LeadPage is one page of a filtered lead list.
type LeadPage struct {
	Leads []model.Lead `json:"leads"`
	Page  int          `json:"page"`
	Size  int          `json:"size"`
	Total int          `json:"total"`
	Pages int          `json:"pages"`
}

// Paginate filters leads, keeping their order, and cuts out the page f
// asks for. f must have been validated. A page past the end is empty.
func Paginate(leads []model.Lead, f LeadFilter) LeadPage {
	matched := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if f.Match(l) {
			matched = append(matched, l)
		}
	}
	page := LeadPage{Page: f.Page, Size: f.Size, Total: len(matched)}
	page.Pages = (len(matched) + f.Size - 1) / f.Size
	start := (f.Page - 1) * f.Size
	if start >= len(matched) {
		page.Leads = []model.Lead{}
		return page
	}
	end := min(start+f.Size, len(matched))
	page.Leads = matched[start:end]
	return page
}
