// Package buffer implements the bounded output accumulator used by every
// tracked session. It is a side-effect-free value type by design: Append
// and Drain never touch anything outside the receiver, which keeps it
// trivial to exercise with table tests.
package buffer

import "strings"

// TruncationNotice is prepended to the buffer whenever an Append pushes
// it past its maximum size. It is part of the external contract: a
// caller polling for output can match on this literal string.
const TruncationNotice = "\n\n[Output truncated due to size limits. Oldest output has been discarded.]\n\n"

// Bounded is an append-only byte accumulator capped at a fixed size. The
// zero value is not usable; construct one with New.
type Bounded struct {
	max int
	buf []byte
}

// New creates a Bounded buffer capped at maxSize bytes. maxSize must be
// larger than len(TruncationNotice) or truncation can never converge;
// callers are expected to pass a sane MAX_BUF-derived value.
func New(maxSize int) *Bounded {
	return &Bounded{max: maxSize}
}

// Append concatenates data onto the buffer. If the result would exceed
// the configured maximum, the oldest bytes are discarded and the
// truncation notice is spliced in ahead of whatever tail survives.
func (b *Bounded) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	b.buf = append(b.buf, data...)
	if len(b.buf) <= b.max {
		return
	}
	b.truncate()
}

// truncate keeps the most recent (max - len(notice)) bytes and prefixes
// them with TruncationNotice. Called only when b.buf has grown past max.
func (b *Bounded) truncate() {
	notice := []byte(TruncationNotice)
	keep := b.max - len(notice)
	if keep < 0 {
		keep = 0
	}
	tailStart := len(b.buf) - keep
	if tailStart < 0 {
		tailStart = 0
	}
	tail := b.buf[tailStart:]
	out := make([]byte, 0, len(notice)+len(tail))
	out = append(out, notice...)
	out = append(out, tail...)
	b.buf = out
}

// Drain returns the current contents as a string and resets the buffer
// to empty. The returned string is a snapshot; later Appends do not
// affect it.
func (b *Bounded) Drain() string {
	if len(b.buf) == 0 {
		return ""
	}
	s := string(b.buf)
	b.buf = nil
	return s
}

// Peek returns the current contents without resetting the buffer.
func (b *Bounded) Peek() string {
	if len(b.buf) == 0 {
		return ""
	}
	return string(b.buf)
}

// Size returns the current size of the buffer in bytes.
func (b *Bounded) Size() int {
	return len(b.buf)
}

// HasTruncationNotice reports whether the current contents still carry
// a truncation notice (useful for tests asserting overflow behavior).
func (b *Bounded) HasTruncationNotice() bool {
	return strings.Contains(string(b.buf), strings.TrimSpace(TruncationNotice))
}
