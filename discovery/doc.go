// Package discovery refreshes the first two stages of the State Store:
// entities reported by the catalog and artifacts found in the document
// store. Rows are only ever inserted or refreshed, never deleted.
package discovery
