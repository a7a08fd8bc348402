package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pfrederiksen/stuwo-offers/internal/logger"
	"github.com/pfrederiksen/stuwo-offers/internal/offer"
	"github.com/pfrederiksen/stuwo-offers/internal/storage"
)

// OfferSource produces the current list of offers
type OfferSource interface {
	FetchOffers(ctx context.Context) (*offer.ParseResult, error)
}

// RunOptions controls a single check
type RunOptions struct {
	Format  OutputFormat
	Verbose bool
	DryRun  bool
	Source  string // offers page URL, for reports
	BaseURL string // resolves relative offer links in verbose output
}

// Run fetches the offers, diffs them against the store and replaces the stored
// snapshot. The report goes to out; in JSON mode progress lines go to progress
// so that out holds a single document.
func Run(ctx context.Context, source OfferSource, store storage.Store, out, progress io.Writer, opts RunOptions) (*offer.DiffResult, error) {
	if opts.Format != FormatJSON {
		progress = out
	}

	fmt.Fprintln(progress, "Starting program!")

	fmt.Fprintln(progress, "Getting new offers...")
	parsed, err := source.FetchOffers(ctx)
	if err != nil {
		return nil, err
	}
	logger.SetGauge("offers.fetched", float64(len(parsed.Offers)))

	fmt.Fprintln(progress, "Looking for stored offers...")
	previous, found, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading cache: %w", err)
	}
	if found {
		fmt.Fprintf(progress, "Offers found on %s!\n", store.Location())
	}
	logger.Debug("Loaded cached offers", logger.Fields{
		"location": store.Location(),
		"offers":   len(previous),
	})

	diff := offer.Diff(parsed.Offers, previous)
	logger.AddCounter("offers.new", int64(len(diff.NewIDs)))
	logger.AddCounter("offers.removed", int64(len(diff.RemovedIDs)))

	result := &OutputResult{
		CheckedAt:  time.Now().UTC(),
		Source:     opts.Source,
		NewIDs:     diff.NewIDs,
		RemovedIDs: diff.RemovedIDs,
		NewOffers:  diff.NewOffers,
		OfferCount: len(parsed.Offers),
		Skipped:    parsed.Skipped,
		BaseURL:    opts.BaseURL,
	}
	if err := WriteOutput(out, result, opts.Format, opts.Verbose); err != nil {
		return nil, fmt.Errorf("writing output: %w", err)
	}

	if opts.DryRun {
		fmt.Fprintln(progress, "Dry run, cache not updated.")
		return diff, nil
	}

	fmt.Fprintln(progress, "Storing new values...")
	if err := store.Save(ctx, parsed.Offers); err != nil {
		return nil, fmt.Errorf("saving cache: %w", err)
	}
	logger.Debug("Saved offers", logger.Fields{
		"location": store.Location(),
		"offers":   len(parsed.Offers),
	})

	return diff, nil
}
