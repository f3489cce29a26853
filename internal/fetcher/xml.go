package fetcher

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// charsetReader decodes non-UTF-8 documents using the declared charset.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
	}
	return enc.NewDecoder().Reader(input), nil
}

// StreamXML decodes every element with the given local name into T and sends
// it on the returned channel. Both channels are closed when the document ends,
// decoding fails, or ctx is done; at most one error is sent.
func StreamXML[T any](ctx context.Context, r io.Reader, localName string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		dec := xml.NewDecoder(r)
		dec.CharsetReader = charsetReader

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}

			tok, err := dec.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "xml: read token")
				return
			}

			start, ok := tok.(xml.StartElement)
			if !ok || start.Name.Local != localName {
				continue
			}

			var item T
			if err := dec.DecodeElement(&item, &start); err != nil {
				errCh <- eris.Wrapf(err, "xml: decode <%s>", localName)
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

// CollectXML drains StreamXML into a slice.
func CollectXML[T any](ctx context.Context, r io.Reader, localName string) ([]T, error) {
	itemCh, errCh := StreamXML[T](ctx, r, localName)
	var items []T
	for item := range itemCh {
		items = append(items, item)
	}
	if err := <-errCh; err != nil {
		return items, err
	}
	return items, nil
}
