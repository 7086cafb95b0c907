package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// readerBufSize is the buffer in front of the JSON decoder. Archives run to
// multiple gigabytes, so the scanner never materializes more than one
// conversation at a time.
const readerBufSize = 1 << 20

// ScanArchive streams conversations out of an export file, invoking fn once
// per conversation. The file may be a bare JSON array of conversations or an
// object wrapping such an array under any key ({"conversations": [...]}).
// Memory usage is bounded by the largest single conversation, not the archive.
//
// A conversation that fails to decode aborts the scan; fn returning an error
// aborts the scan with that error.
func ScanArchive(ctx context.Context, r io.Reader, fn func(*Conversation) error) error {
	dec := json.NewDecoder(bufio.NewReaderSize(r, readerBufSize))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return fmt.Errorf("unexpected archive start token %v", tok)
	}

	switch delim {
	case '[':
		return scanConversations(ctx, dec, fn)
	case '{':
		// Wrapped form: walk keys until an array value shows up, stream it,
		// then skip the rest of the wrapper.
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("reading archive key: %w", err)
			}
			next, err := dec.Token()
			if err != nil {
				return fmt.Errorf("reading archive value: %w", err)
			}
			if d, ok := next.(json.Delim); ok {
				switch d {
				case '[':
					return scanConversations(ctx, dec, fn)
				case '{':
					if err := skipValue(dec); err != nil {
						return err
					}
					continue
				}
			}
		}
		return fmt.Errorf("archive object contains no conversation array")
	default:
		return fmt.Errorf("unexpected archive start token %v", delim)
	}
}

// scanConversations consumes array elements from dec until the closing
// bracket, decoding each into a Conversation.
func scanConversations(ctx context.Context, dec *json.Decoder, fn func(*Conversation) error) error {
	n := 0
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var conv Conversation
		if err := dec.Decode(&conv); err != nil {
			return fmt.Errorf("decoding conversation %d: %w", n, err)
		}
		if err := fn(&conv); err != nil {
			return err
		}
		n++
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading archive end: %w", err)
	}
	return nil
}

// skipValue consumes one complete JSON value (after its opening delimiter has
// already been read) by tracking nesting depth.
func skipValue(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("skipping archive value: %w", err)
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
