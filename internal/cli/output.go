package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pfrederiksen/stuwo-offers/internal/offer"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// OutputResult contains data to be output
type OutputResult struct {
	CheckedAt  time.Time          `json:"checked_at"`
	Source     string             `json:"source"`
	NewIDs     []string           `json:"new_ids"`
	RemovedIDs []string           `json:"removed_ids"`
	NewOffers  []*offer.Offer     `json:"new_offers"`
	OfferCount int                `json:"offer_count"`
	Skipped    []offer.SkippedRow `json:"skipped,omitempty"`
	BaseURL    string             `json:"-"`
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs results as JSON
func writeJSON(w io.Writer, result *OutputResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// writeText prints both ID lists, with offer details in verbose mode
func writeText(w io.Writer, result *OutputResult, verbose bool) error {
	fmt.Fprintf(w, "New Ids: %s\n", formatIDs(result.NewIDs))
	if verbose {
		for _, o := range result.NewOffers {
			writeOffer(w, "  NEW: ", o, result.BaseURL)
		}
	}

	fmt.Fprintf(w, "Removed Ids: %s\n", formatIDs(result.RemovedIDs))

	if verbose && len(result.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped %d malformed rows:\n", len(result.Skipped))
		for _, s := range result.Skipped {
			fmt.Fprintf(w, "  row %d: %s\n", s.Index, s.Reason)
		}
	}

	return nil
}

// writeOffer prints one offer on a line, followed by its link
func writeOffer(w io.Writer, prefix string, o *offer.Offer, baseURL string) {
	fmt.Fprintf(w, "%s%s | %s | %s | %s | %s rooms | %s\n",
		prefix, o.ID, o.Address, o.RoomType, o.Cost, o.NRooms, o.Size)
	fmt.Fprintf(w, "       Link: %s\n", o.URL(baseURL))
}

// formatIDs renders ids as a bracketed list of quoted strings, e.g. ["A", "B"]
func formatIDs(ids []string) string {
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, strconv.Quote(id))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// writeJSONOffers outputs a list of offers in the cache format
func writeJSONOffers(w io.Writer, offers []*offer.Offer) error {
	if offers == nil {
		offers = make([]*offer.Offer, 0)
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(offers)
}
