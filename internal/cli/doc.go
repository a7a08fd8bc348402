// Package cli implements the command-line interface for stuwo-offers.
//
// The root command fetches the current offers, compares them with the cached
// snapshot, prints the new and removed offer IDs and replaces the cache. The
// config subcommand prints the effective configuration and show lists the cached
// offers without fetching.
package cli
