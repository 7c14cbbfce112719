// Package normalize turns raw ingested items into clean, hashable text.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"leadscout/internal/models"
	"leadscout/internal/util"

	"github.com/ledongthuc/pdf"
)

const DefaultCharsPerToken = 4

// FieldOrder lists, per source tag, which structured fields follow the title and in which order.
// Unknown sources fall back to sorted field names.
var FieldOrder = map[string][]string{
	"caselaw": {"case_name", "court", "snippet", "citation"},
	"recall":  {"product_description", "reason_for_recall", "recalling_firm", "classification"},
	"agency":  {"summary", "body", "agency", "docket"},
	"rss":     {"description", "content"},
	"upload":  {"text"},
}

type Normalizer struct {
	charsPerToken int
	fieldOrder    map[string][]string
}

func New(charsPerToken int) *Normalizer {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return &Normalizer{charsPerToken: charsPerToken, fieldOrder: FieldOrder}
}

// Normalize builds "title, then fields in source order" text and hashes the result.
// Items with nothing extractable return *models.EmptyContentError.
func (n *Normalizer) Normalize(item models.IngestedItem) (models.Normalized, error) {
	fields, err := n.extractFields(item)
	if err != nil && !errors.Is(err, util.ErrNoExtractableText) {
		return models.Normalized{}, &models.EmptyContentError{Source: item.Source, Title: item.Title, Reason: err.Error()}
	}

	parts := make([]string, 0, len(fields)+1)
	if title := util.NormalizeBlock(item.Title); title != "" {
		parts = append(parts, title)
	}
	order, rest := n.order(item.Source, fields)
	body := blocks(fields, order)
	if len(body) == 0 {
		// Fields outside a known source's order only count when the ordered
		// fields carry no text, so stray metadata never shifts the hash.
		body = blocks(fields, rest)
	}
	if len(body) == 0 {
		return models.Normalized{}, &models.EmptyContentError{Source: item.Source, Title: item.Title}
	}
	parts = append(parts, body...)
	text := strings.Join(parts, "\n\n")
	return models.Normalized{
		Text:        text,
		TokenCount:  n.EstimateTokens(text),
		ContentHash: util.SHA256Hex([]byte(text)),
	}, nil
}

// EstimateTokens uses a fixed chars-per-token ratio over runes.
func (n *Normalizer) EstimateTokens(text string) int {
	runes := utf8.RuneCountInString(text)
	if runes == 0 {
		return 0
	}
	return (runes + n.charsPerToken - 1) / n.charsPerToken
}

// order returns the field keys in source order plus, for known sources, the
// remaining keys sorted. Unknown sources use every key sorted.
func (n *Normalizer) order(source string, fields map[string]string) (ordered, rest []string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	order, ok := n.fieldOrder[strings.ToLower(strings.TrimSpace(source))]
	if !ok {
		return keys, nil
	}
	ordered = append(make([]string, 0, len(order)+1), order...)
	if !slices.Contains(order, "text") {
		// Payload-derived text is always appended last.
		ordered = append(ordered, "text")
	}
	for _, k := range keys {
		if !slices.Contains(ordered, k) {
			rest = append(rest, k)
		}
	}
	return ordered, rest
}

func blocks(fields map[string]string, keys []string) []string {
	var out []string
	for _, k := range keys {
		if v := util.NormalizeBlock(fields[k]); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// extractFields prefers explicit fields, then decodes the raw payload by type.
func (n *Normalizer) extractFields(item models.IngestedItem) (map[string]string, error) {
	if len(item.Fields) > 0 {
		return item.Fields, nil
	}
	payload := item.RawPayload
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, util.ErrNoExtractableText
	}
	mime := strings.ToLower(item.MIMEType)
	switch {
	case strings.Contains(mime, "pdf") || bytes.HasPrefix(payload, []byte("%PDF-")):
		text, err := ExtractPDFText(payload)
		if err != nil {
			return nil, err
		}
		return map[string]string{"text": text}, nil
	case strings.Contains(mime, "json") || looksLikeJSON(payload):
		return decodeJSONFields(payload)
	case strings.Contains(mime, "html") || looksLikeHTML(payload):
		return map[string]string{"text": stripHTML(string(payload))}, nil
	default:
		return map[string]string{"text": string(payload)}, nil
	}
}

// ExtractPDFText returns the plain text layer of a PDF payload.
func ExtractPDFText(payload []byte) (text string, err error) {
	// The pdf reader panics on some malformed xref tables.
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("malformed pdf: %v", rec)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	text = util.SanitizeText(buf.String())
	if text == "" {
		return "", util.ErrNoExtractableText
	}
	return text, nil
}

func decodeJSONFields(payload []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("decode json payload: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil, util.ErrNoExtractableText
	}
	return out, nil
}

func looksLikeJSON(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 1 && b[0] == '{' && b[len(b)-1] == '}'
}

func looksLikeHTML(b []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(b))
	if len(head) > 64 {
		head = head[:64]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html")) || bytes.HasPrefix(head, []byte("<p"))
}

var (
	blockTagRe = regexp.MustCompile(`(?i)</?(p|div|br|li|h[1-6]|tr|section|article)[^>]*>`)
	scriptRe   = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
)

func stripHTML(s string) string {
	s = scriptRe.ReplaceAllString(s, " ")
	s = blockTagRe.ReplaceAllString(s, "\n\n")
	s = tagRe.ReplaceAllString(s, " ")
	return html.UnescapeString(s)
}
