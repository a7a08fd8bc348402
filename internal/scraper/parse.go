package scraper

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/stuwo-offers/internal/offer"
)

// Columns per row: id+link anchor, address, room type, cost, rooms, size
const columnCount = 6

var (
	// ErrNoTable is returned when the page has no table body at all
	ErrNoTable = errors.New("offers table not found")
	// ErrRowStructure is returned in strict mode when a row lacks expected cells or the anchor
	ErrRowStructure = errors.New("unexpected row structure")

	lineBreakPattern = regexp.MustCompile(`(?i)<br\s*/?>`)
)

// ParseOffers extracts offers from the first table body of the page. In strict
// mode the first malformed row aborts the parse; otherwise it is recorded in
// ParseResult.Skipped.
func ParseOffers(r io.Reader, strict bool) (*offer.ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	table := doc.Find("tbody").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	result := &offer.ParseResult{
		Offers: make([]*offer.Offer, 0),
	}

	var rowErr error
	table.ChildrenFiltered("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		o, reason := parseRow(row)
		if reason == "" {
			result.Offers = append(result.Offers, o)
			return true
		}
		if strict {
			rowErr = fmt.Errorf("row %d: %w: %s", i, ErrRowStructure, reason)
			return false
		}
		result.Skipped = append(result.Skipped, offer.SkippedRow{Index: i, Reason: reason})
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	return result, nil
}

// parseRow returns the offer for one row, or a reason why it could not be built
func parseRow(row *goquery.Selection) (*offer.Offer, string) {
	cells := row.ChildrenFiltered("td")
	if cells.Length() < columnCount {
		return nil, fmt.Sprintf("expected %d cells, got %d", columnCount, cells.Length())
	}

	anchor := cells.Eq(0).Find("a").First()
	if anchor.Length() == 0 {
		return nil, "missing offer link"
	}
	link, ok := anchor.Attr("href")
	if !ok {
		return nil, "offer link has no href"
	}

	values := make([]string, 0, columnCount)
	values = append(values, cellText(anchor))
	for i := 1; i < columnCount; i++ {
		values = append(values, cellText(cells.Eq(i)))
	}

	return offer.NewOffer(
		values[0],
		normalize(link),
		values[1],
		values[2],
		values[3],
		values[4],
		values[5],
	), ""
}

// cellText returns the normalized inner content of sel
func cellText(sel *goquery.Selection) string {
	markup, err := sel.Html()
	if err != nil {
		return normalize(sel.Text())
	}
	return markupText(normalize(markup))
}

// normalize drops tabs and newlines and turns line breaks into single spaces
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\t", "")
	s = strings.ReplaceAll(s, "\n", "")
	return lineBreakPattern.ReplaceAllString(s, " ")
}

// markupText strips remaining tags and decodes entities
func markupText(markup string) string {
	if !strings.ContainsAny(markup, "<&") {
		return markup
	}
	// Wrapped so leading whitespace survives the parser's pre-body modes
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + markup + "</div>"))
	if err != nil {
		return markup
	}
	return doc.Find("div").First().Text()
}
