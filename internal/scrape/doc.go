// Package scrape defines the domain types shared by the extraction proxy: the
// fetched page, the normalized extraction result, the interfaces each stage of
// the pipeline implements, and the error taxonomy surfaced to callers.
package scrape
