// Package offer provides the Offer record scraped from the housing offers page
// and the set comparison between two runs.
//
// Offers are identified by the ID shown in the first column of the offers table.
// IDs are expected to be unique within one fetch but this is not enforced: ordered
// lists keep duplicates, keyed views let the later record win.
package offer
