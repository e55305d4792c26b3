package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const cursorSeparator = "~"

// Cursor identifies the position after the last item of a page: its
// submittedAt plus the store insertion sequence used as the tie-break for
// equal timestamps. Clients treat the encoded form as opaque.
type Cursor struct {
	SubmittedAt time.Time
	Seq         int64
}

// String encodes the cursor. A zero Seq encodes as a bare timestamp.
func (c Cursor) String() string {
	ts := c.SubmittedAt.UTC().Format(time.RFC3339Nano)
	if c.Seq == 0 {
		return ts
	}
	return ts + cursorSeparator + strconv.FormatInt(c.Seq, 10)
}

// ParseCursor decodes a cursor produced by Cursor.String. A bare RFC 3339
// timestamp is accepted and yields Seq == 0, which callers interpret as
// "strictly older than SubmittedAt".
func ParseCursor(s string) (Cursor, error) {
	tsPart, seqPart, hasSeq := strings.Cut(s, cursorSeparator)

	ts, err := time.Parse(time.RFC3339Nano, tsPart)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor timestamp %q: %w", tsPart, err)
	}

	c := Cursor{SubmittedAt: ts.UTC()}
	if !hasSeq {
		return c, nil
	}

	seq, err := strconv.ParseInt(seqPart, 10, 64)
	if err != nil || seq <= 0 {
		return Cursor{}, fmt.Errorf("invalid cursor sequence %q", seqPart)
	}
	c.Seq = seq
	return c, nil
}

// Before reports whether an item at (submittedAt, seq) sorts strictly after
// the cursor in newest-first order, i.e. belongs to the next page.
func (c Cursor) Before(submittedAt time.Time, seq int64) bool {
	if submittedAt.Before(c.SubmittedAt) {
		return true
	}
	if c.Seq == 0 || !submittedAt.Equal(c.SubmittedAt) {
		return false
	}
	return seq < c.Seq
}
