package feed

import (
	"bytes"
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quakemap/internal/fetcher"
	"github.com/sells-group/quakemap/internal/model"
)

// DefaultURL is the USGS feed of magnitude 2.5+ quakes from the past week.
const DefaultURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/2.5_week.atom"

// Parse decodes an Atom document into quakes. Entries that cannot be
// converted are skipped; a malformed document is an error.
func Parse(ctx context.Context, r io.Reader) ([]model.Quake, error) {
	entries, err := fetcher.CollectXML[Entry](ctx, r, "entry")
	if err != nil {
		return nil, eris.Wrap(err, "feed: parse")
	}

	log := zap.L().With(zap.String("component", "feed"))
	quakes := make([]model.Quake, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		q, err := e.Quake()
		if err != nil {
			log.Debug("feed: skipping entry", zap.String("id", e.ID), zap.Error(err))
			continue
		}
		if q.ID != "" && seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		quakes = append(quakes, q)
	}
	if skipped := len(entries) - len(quakes); skipped > 0 {
		log.Info("feed: skipped entries", zap.Int("skipped", skipped), zap.Int("kept", len(quakes)))
	}
	return quakes, nil
}

// Snapshot is the result of one fetch.
type Snapshot struct {
	Source  string
	Raw     []byte
	ETag    string
	Changed bool
	Quakes  []model.Quake
}

// Client loads the feed from a URL or local file. Once a snapshot is
// committed its ETag is sent on later polls so unchanged documents are
// skipped.
type Client struct {
	fetcher fetcher.Fetcher
	source  string
	etag    string
}

// NewClient creates a Client. f may be nil when source is a local file.
func NewClient(f fetcher.Fetcher, source string) *Client {
	if source == "" {
		source = DefaultURL
	}
	return &Client{fetcher: f, source: source}
}

// Source returns the configured feed location.
func (c *Client) Source() string {
	return c.source
}

// Fetch downloads and parses the feed. For remote sources a document
// unchanged since the last committed snapshot yields Changed=false and no
// quakes. Fetch does not advance the ETag; see Commit.
func (c *Client) Fetch(ctx context.Context) (*Snapshot, error) {
	var body io.ReadCloser
	snap := &Snapshot{Source: c.source, Changed: true}

	if fetcher.IsRemote(c.source) && c.fetcher != nil {
		b, etag, changed, err := c.fetcher.DownloadIfChanged(ctx, c.source, c.etag)
		if err != nil {
			return nil, eris.Wrap(err, "feed: fetch")
		}
		snap.ETag = etag
		if !changed {
			snap.Changed = false
			return snap, nil
		}
		body = b
	} else {
		b, err := fetcher.Open(ctx, c.fetcher, c.source)
		if err != nil {
			return nil, eris.Wrap(err, "feed: fetch")
		}
		body = b
	}
	defer body.Close() //nolint:errcheck

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "feed: read body")
	}

	quakes, err := Parse(ctx, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	snap.Raw = raw
	snap.Quakes = quakes
	return snap, nil
}

// Commit records snap as handled. Until a snapshot is committed, Fetch keeps
// returning the full document.
func (c *Client) Commit(snap *Snapshot) {
	if snap == nil || !snap.Changed {
		return
	}
	c.etag = snap.ETag
}
