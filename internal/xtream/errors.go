package xtream

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Kind classifies an upstream failure so handlers can pick an HTTP status
// without sniffing message text.
type Kind int

const (
	// KindConnectivity covers transport failures (DNS, refused, timeout)
	// and Cloudflare origin errors: the panel could not be reached at all.
	KindConnectivity Kind = iota
	// KindRejected is a 4xx answer from the panel itself.
	KindRejected
	// KindBadResponse is a body we could not make sense of (HTML error
	// pages, truncated JSON, unexpected shapes).
	KindBadResponse
	// KindInvalidLogin means the panel answered but the credentials were
	// not accepted.
	KindInvalidLogin
)

// Error is the failure type returned by all Client operations.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int // upstream HTTP status, 0 for transport failures
}

func (e *Error) Error() string { return e.Message }

// User-facing messages, German like the rest of the product.
const (
	msgDNSFailure    = "DNS-Auflösung fehlgeschlagen – der Xtream-Host existiert nicht oder ist falsch geschrieben (Error 1016)"
	msgOriginDown    = "Der Xtream-Server ist nicht erreichbar (Cloudflare Error 521)"
	msgOriginTimeout = "Timeout beim Xtream-Server (Cloudflare Error 522)"
	msgUnavailable   = "Der Xtream-Server ist derzeit nicht erreichbar"
	msgRejected      = "Die Anfrage wurde vom Xtream-Server abgelehnt"
	msgUnknownBody   = "Unbekannte Antwort vom Xtream-Server"
	msgConnection    = "Verbindung zum Xtream-Server fehlgeschlagen"
	msgInvalidLogin  = "Ungültige Xtream Zugangsdaten"
)

// Misconfigured hosts sit behind Cloudflare and answer with HTML error
// pages that carry a numeric code after "error code" or "Error".
var upstreamCodeRe = regexp.MustCompile(`(?i)error(?:\s+code)?[:\s]+(\d{3,4})`)

const bodySnippetLen = 180

// mapUpstreamError turns a non-JSON or non-2xx upstream answer into a
// classified Error. The raw body takes precedence over the HTTP status:
// Cloudflare reports its own codes in the page text regardless of status.
func mapUpstreamError(status int, body []byte) *Error {
	switch code := extractUpstreamCode(body); code {
	case "1016":
		return &Error{Kind: KindConnectivity, Message: msgDNSFailure, StatusCode: status}
	case "521":
		return &Error{Kind: KindConnectivity, Message: msgOriginDown, StatusCode: status}
	case "522":
		return &Error{Kind: KindConnectivity, Message: msgOriginTimeout, StatusCode: status}
	}

	switch {
	case status >= 500:
		return &Error{Kind: KindConnectivity, Message: msgUnavailable, StatusCode: status}
	case status >= 400:
		return &Error{Kind: KindRejected, Message: msgRejected, StatusCode: status}
	}

	if snippet := bodySnippet(body); snippet != "" {
		return &Error{Kind: KindBadResponse, Message: snippet, StatusCode: status}
	}
	return &Error{Kind: KindBadResponse, Message: msgUnknownBody, StatusCode: status}
}

func extractUpstreamCode(body []byte) string {
	m := upstreamCodeRe.FindSubmatch(body)
	if m == nil {
		return ""
	}
	return string(m[1])
}

// bodySnippet returns the first 180 characters of the raw body, trimmed.
func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= bodySnippetLen {
		return s
	}
	cut := s[:bodySnippetLen]
	// Don't split a multi-byte rune.
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
