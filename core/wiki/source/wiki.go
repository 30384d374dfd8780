// Package source reads pages and revisions from a MediaWiki SQLite
// database and watches the database file for changes.
package source

import (
	"context"

	"github.com/adalundhe/wikisearch/core/page"
)

// Wiki is a read-only view of a wiki's pages.
type Wiki interface {
	// LatestRevision returns the highest revision id in the wiki.
	LatestRevision(ctx context.Context) (uint32, error)

	// ListPages returns the current version of every page.
	ListPages(ctx context.Context) ([]page.Page, error)
}
