// Package domain holds the routing configuration aggregates and the pure
// rule-matching logic that decides where an inbound lead goes.
package domain

import (
	"sort"
	"strings"
	"time"

	leaddomain "crm_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// Rule is a priority-ordered routing rule. Each match dimension is a set of
// acceptable values; an empty set is a wildcard.
type Rule struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	Priority            int        `json:"priority"`
	IsActive            bool       `json:"isActive"`
	Languages           []string   `json:"languages"`
	PageTypes           []string   `json:"pageTypes"`
	PageSlugs           []string   `json:"pageSlugs"`
	Sources             []string   `json:"sources"`
	Segments            []string   `json:"segments"`
	BudgetRanges        []string   `json:"budgetRanges"`
	PropertyTypes       []string   `json:"propertyTypes"`
	Timeframes          []string   `json:"timeframes"`
	TargetAgentID       uuid.UUID  `json:"targetAgentId"`
	FallbackToBroadcast bool       `json:"fallbackToBroadcast"`
	TotalMatches        int        `json:"totalMatches"`
	LastMatchedAt       *time.Time `json:"lastMatchedAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// Matches reports whether every configured dimension of the rule accepts
// the lead's attributes. Budget ranges match by substring so coarse rule
// values ("500k") match the verbose form a lead submits.
func (r Rule) Matches(a leaddomain.Attributes) bool {
	if !containsValue(r.Languages, a.Language) {
		return false
	}
	if !containsValue(r.PageTypes, a.PageType) {
		return false
	}
	if !containsValue(r.PageSlugs, a.PageSlug) {
		return false
	}
	if !containsValue(r.Sources, a.Source) {
		return false
	}
	if !containsValue(r.Segments, a.Segment) {
		return false
	}
	if !budgetMatches(r.BudgetRanges, a.BudgetRange) {
		return false
	}
	if !containsValue(r.PropertyTypes, a.PropertyType) {
		return false
	}
	if !containsValue(r.Timeframes, a.Timeframe) {
		return false
	}
	return true
}

// SelectRule returns the first active rule that fully matches the lead,
// scanning highest priority first with ties broken by earliest creation.
// Returns nil when nothing matches.
func SelectRule(rules []Rule, a leaddomain.Attributes) *Rule {
	ordered := append([]Rule(nil), rules...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	for i := range ordered {
		if !ordered[i].IsActive {
			continue
		}
		if ordered[i].Matches(a) {
			return &ordered[i]
		}
	}
	return nil
}

func containsValue(set []string, value string) bool {
	if len(set) == 0 {
		return true
	}
	for _, item := range set {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

func budgetMatches(set []string, budget string) bool {
	if len(set) == 0 {
		return true
	}
	if budget == "" {
		return false
	}
	lowered := strings.ToLower(budget)
	for _, item := range set {
		if strings.Contains(lowered, strings.ToLower(item)) {
			return true
		}
	}
	return false
}
