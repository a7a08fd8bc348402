package cli

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pfrederiksen/stuwo-offers/internal/offer"
)

// SortOrder represents the available sorting options for listing offers
type SortOrder string

const (
	SortNone   SortOrder = ""
	SortByID   SortOrder = "id"
	SortByCost SortOrder = "cost"
	SortBySize SortOrder = "size"
)

var (
	amountPattern    = regexp.MustCompile(`\d[\d.,]*`)
	thousandsPattern = regexp.MustCompile(`[.,](\d{3})\b`)
)

// parseSortOrder validates a --sort value
func parseSortOrder(s string) (SortOrder, error) {
	order := SortOrder(strings.ToLower(strings.TrimSpace(s)))
	switch order {
	case SortNone, SortByID, SortByCost, SortBySize:
		return order, nil
	default:
		return "", fmt.Errorf("invalid sort order: %s (must be 'id', 'cost' or 'size')", s)
	}
}

// sortOffers sorts offers in place. SortNone keeps the stored order.
func sortOffers(offers []*offer.Offer, order SortOrder) {
	switch order {
	case SortByID:
		sort.SliceStable(offers, func(i, j int) bool {
			return offers[i].ID < offers[j].ID
		})
	case SortByCost:
		sort.SliceStable(offers, func(i, j int) bool {
			return compareByAmount(offers[i].Cost, offers[j].Cost)
		})
	case SortBySize:
		sort.SliceStable(offers, func(i, j int) bool {
			return compareByAmount(offers[i].Size, offers[j].Size)
		})
	}
}

// compareByAmount orders free-text amounts like "520 €" or "42,5 m²" numerically.
// Values without a number sort last.
func compareByAmount(a, b string) bool {
	valueA, okA := parseAmount(a)
	valueB, okB := parseAmount(b)

	if okA && okB {
		return valueA < valueB
	}
	if okA {
		return true
	}
	return false
}

// parseAmount extracts the first number from s, accepting German separators
func parseAmount(s string) (float64, bool) {
	match := amountPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	match = strings.TrimRight(match, ".,")
	match = thousandsPattern.ReplaceAllString(match, "$1")
	match = strings.ReplaceAll(match, ",", ".")

	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
