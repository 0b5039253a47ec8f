package verify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Kind classifies why a backend call failed
type Kind int

const (
	KindNetwork     Kind = iota // Transport failure, timeout, offline, or 5xx
	KindAuth                    // Credential rejected (401/403)
	KindRateLimit               // Backend throttled the request
	KindSafetyBlock             // Backend refused on content-policy grounds
	KindParse                   // Response did not have the expected shape
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindSafetyBlock:
		return "safety_block"
	case KindParse:
		return "parse"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ExcerptLimit bounds the raw payload kept on parse errors
const ExcerptLimit = 200

// Error is a classified backend failure. Errors are never retried
// automatically, whatever their kind.
type Error struct {
	Kind    Kind
	Backend string
	Message string
	Excerpt string // Truncated raw payload, parse errors only
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Backend != "" {
		b.WriteString(e.Backend)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, ErrAuth)
// works regardless of backend or message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Backend == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrNetwork     = &Error{Kind: KindNetwork}
	ErrAuth        = &Error{Kind: KindAuth}
	ErrRateLimit   = &Error{Kind: KindRateLimit}
	ErrSafetyBlock = &Error{Kind: KindSafetyBlock}
	ErrParse       = &Error{Kind: KindParse}
)

// UserMessage is the text shown on an Error record
func (e *Error) UserMessage() string {
	who := e.Backend
	if who == "" {
		who = "The verification service"
	}
	switch e.Kind {
	case KindAuth:
		return who + " rejected the credential. Check the API key or token in your configuration."
	case KindRateLimit:
		return who + " is rate limiting requests. Wait a minute, then re-run the analysis."
	case KindSafetyBlock:
		if e.Message != "" {
			return who + " declined to answer: " + e.Message
		}
		return who + " declined to answer for content-policy reasons."
	case KindParse:
		msg := who + " returned a response that could not be read"
		if e.Excerpt != "" {
			msg += ": " + e.Excerpt
		}
		return msg
	default:
		target := e.Backend
		if target == "" {
			target = "the verification service"
		}
		msg := "Could not reach " + target + ". Check your network connection and try again."
		if e.Message != "" {
			msg += " (" + e.Message + ")"
		}
		return msg
	}
}

// NewParseError builds a parse failure carrying an excerpt of raw
func NewParseError(backend string, raw []byte, err error) *Error {
	return &Error{
		Kind:    KindParse,
		Backend: backend,
		Message: "unexpected response shape",
		Excerpt: Excerpt(raw, ExcerptLimit),
		Err:     err,
	}
}

// FromStatus classifies a non-2xx HTTP response
func FromStatus(backend string, status int, body []byte) *Error {
	e := &Error{Backend: backend, Message: fmt.Sprintf("HTTP %d", status)}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusTooManyRequests || status == 529: // 529: Anthropic overloaded
		e.Kind = KindRateLimit
	default:
		e.Kind = KindNetwork
	}
	if len(body) > 0 {
		e.Excerpt = Excerpt(body, ExcerptLimit)
	}
	return e
}

// Classify converts any error returned by a backend call into an *Error.
// Already-classified errors keep their kind; everything else, including
// timeouts and cancellations, is a network failure.
func Classify(backend string, err error) *Error {
	if err == nil {
		return nil
	}

	var ve *Error
	if errors.As(err, &ve) {
		if ve.Backend == "" {
			cp := *ve
			cp.Backend = backend
			return &cp
		}
		return ve
	}

	e := &Error{Kind: KindNetwork, Backend: backend, Err: err}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Message = "request timed out"
	case errors.Is(err, context.Canceled):
		e.Message = "request cancelled"
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Message = "request timed out"
	case errors.As(err, &netErr):
		e.Message = "connection failed"
	}
	return e
}

// KindOf returns the kind of a classified error, or KindNetwork
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindNetwork
}

// Excerpt truncates raw to at most limit bytes on a rune boundary
func Excerpt(raw []byte, limit int) string {
	s := strings.TrimSpace(string(raw))
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
