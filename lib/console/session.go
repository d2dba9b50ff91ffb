package console

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Session drives an interactive text console over one byte stream per
// direction. Expect scans the inbound stream for literal markers; Send
// injects keystrokes on the outbound side. The inbound cursor lives in the
// session: a second Expect resumes exactly where the previous one stopped,
// no byte is ever re-read.
type Session struct {
	w          io.Writer
	bytes      chan byte
	readErr    error // set before bytes is closed
	observer   io.Writer
	newMatcher MatcherFunc
}

// Option configures a Session.
type Option func(*Session)

// WithObserver mirrors every consumed byte to w for live progress display.
func WithObserver(w io.Writer) Option {
	return func(s *Session) { s.observer = w }
}

// WithMatcher swaps the pattern automaton used by Expect.
func WithMatcher(f MatcherFunc) Option {
	return func(s *Session) { s.newMatcher = f }
}

// NewSession starts reading from r immediately. The pump goroutine exits when
// r returns an error, which surfaces from the next Expect as ErrClosed.
//
// The session has no Close; its lifetime is the lifetime of r. If the caller
// stops calling Expect before the stream ends, the pump stays parked on the
// next undelivered byte until r is closed, which closing the console (or the
// VM exiting) always does.
func NewSession(r io.Reader, w io.Writer, opts ...Option) *Session {
	s := &Session{
		w:          w,
		bytes:      make(chan byte),
		newMatcher: NewNaiveMatcher,
	}
	for _, opt := range opts {
		opt(s)
	}

	go func() {
		buf := make([]byte, 1)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				s.bytes <- buf[0]
			}
			if err != nil {
				s.readErr = err
				close(s.bytes)
				return
			}
		}
	}()

	return s
}

// Expect consumes the stream byte by byte until pattern has been matched in
// sequence, mirroring every byte to the observer. perByte bounds the wait for
// each individual byte, not the call as a whole: the effective deadline
// scales with how much output has to be scanned. Returns ErrTimeout when no
// byte arrives in time, ErrClosed when the stream ends first.
func (s *Session) Expect(ctx context.Context, pattern string, perByte time.Duration) error {
	if pattern == "" {
		return nil
	}

	m := s.newMatcher(pattern)
	timer := time.NewTimer(perByte)
	defer timer.Stop()

	for {
		select {
		case b, ok := <-s.bytes:
			if !ok {
				if s.readErr != nil && s.readErr != io.EOF {
					return fmt.Errorf("%w: %v", ErrClosed, s.readErr)
				}
				return fmt.Errorf("%w: waiting for %q", ErrClosed, pattern)
			}
			if s.observer != nil {
				s.observer.Write([]byte{b}) //nolint:errcheck // progress display only
			}
			if m.Feed(b) {
				return nil
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(perByte)
		case <-timer.C:
			return fmt.Errorf("%w: no byte within %s while waiting for %q", ErrTimeout, perByte, pattern)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Send writes text to the outbound side. Fire and forget: there is no
// acknowledgment from the far end.
func (s *Session) Send(text string) error {
	if _, err := io.WriteString(s.w, text); err != nil {
		return fmt.Errorf("console write: %w", err)
	}
	return nil
}
