// Package storage persists the latest list of offers between runs.
//
// The default backend is a JSON file (offers_cache.json in the working
// directory) holding a top-level array of offer objects. The same document can
// instead be kept under a Redis key, or the offers can be stored as rows of a
// PostgreSQL table. Every backend supersedes the previous snapshot on Save; there
// is no merging and no history.
package storage
