// Package chunker splits normalized document text into bounded, ordered chunks.
package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"leadscout/internal/models"
	"leadscout/internal/util"
)

const DefaultMaxTokens = 2048

// Hinter tags text with candidate practice areas. Hints are chunk metadata.
type Hinter interface {
	Hints(text string) []string
}

type Chunker struct {
	maxTokens     int
	charsPerToken int
	hinter        Hinter
}

// New returns a chunker; hinter may be nil.
func New(maxTokens, charsPerToken int, hinter Hinter) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	return &Chunker{maxTokens: maxTokens, charsPerToken: charsPerToken, hinter: hinter}
}

// Build chunks a document's text and attaches document metadata to every chunk.
func (c *Chunker) Build(tenantID string, doc models.Document, text string) []models.Chunk {
	parts := SplitText(text, c.maxTokens, c.charsPerToken)
	out := make([]models.Chunk, 0, len(parts))
	for idx, part := range parts {
		var hints []string
		if c.hinter != nil {
			hints = c.hinter.Hints(part)
		}
		out = append(out, models.Chunk{
			ID:         util.HashParts(doc.ID, strconv.Itoa(idx), util.SHA256Hex([]byte(part))),
			TenantID:   tenantID,
			DocumentID: doc.ID,
			Index:      idx,
			Text:       part,
			TokenCount: estimateTokens(part, c.charsPerToken),
			Metadata: models.ChunkMetadata{
				Source:            doc.Source,
				Jurisdiction:      doc.Jurisdiction,
				PublishedAt:       doc.PublishedAt,
				PracticeAreaHints: hints,
			},
		})
	}
	return out
}

// SplitText splits on heading/paragraph boundaries, packs segments up to maxTokens,
// and splits oversized segments at the last sentence boundary under the limit.
// Output is a pure function of the input.
func SplitText(text string, maxTokens, charsPerToken int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	maxRunes := maxTokens * charsPerToken

	out := make([]string, 0, 8)
	var cur strings.Builder
	curRunes := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
		curRunes = 0
	}
	for _, seg := range segments(text) {
		n := utf8.RuneCountInString(seg)
		if n > maxRunes {
			flush()
			out = append(out, splitOversize(seg, maxRunes)...)
			continue
		}
		if curRunes > 0 && curRunes+2+n > maxRunes {
			flush()
		}
		if curRunes > 0 {
			cur.WriteString("\n\n")
			curRunes += 2
		}
		cur.WriteString(seg)
		curRunes += n
	}
	flush()
	return out
}

var headingRe = regexp.MustCompile(`^(#{1,6}\s|(?i:section|article|part|chapter)\s+[0-9ivx]+\b|§\s*\d)`)

// segments splits text at blank lines and before heading lines.
func segments(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines)/2+1)
	cur := make([]string, 0, 8)
	flush := func() {
		if s := strings.TrimSpace(strings.Join(cur, "\n")); s != "" {
			out = append(out, s)
		}
		cur = cur[:0]
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if isHeading(trimmed) {
			flush()
		}
		cur = append(cur, trimmed)
	}
	flush()
	return out
}

func isHeading(line string) bool {
	if headingRe.MatchString(line) {
		return true
	}
	// Short all-caps lines such as "BACKGROUND" or "NOTICE OF RECALL".
	if utf8.RuneCountInString(line) > 60 {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			if unicode.IsLower(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 4
}

// splitOversize cuts seg into pieces of at most maxRunes, preferring sentence ends,
// then whitespace, then a hard rune cut.
func splitOversize(seg string, maxRunes int) []string {
	out := make([]string, 0, 4)
	rest := strings.TrimSpace(seg)
	for rest != "" {
		if utf8.RuneCountInString(rest) <= maxRunes {
			out = append(out, rest)
			break
		}
		limit := byteOffsetOfRune(rest, maxRunes)
		cut := 0
		for _, end := range util.SentenceEnds(rest) {
			if end > limit {
				break
			}
			cut = end
		}
		if cut == 0 {
			cut = strings.LastIndexFunc(rest[:limit], unicode.IsSpace)
		}
		if cut <= 0 {
			cut = limit
		}
		piece := strings.TrimSpace(rest[:cut])
		if piece != "" {
			out = append(out, piece)
		}
		rest = strings.TrimSpace(rest[cut:])
	}
	return out
}

// byteOffsetOfRune returns the byte offset where rune number n starts.
func byteOffsetOfRune(s string, n int) int {
	i := 0
	for off := range s {
		if i == n {
			return off
		}
		i++
	}
	return len(s)
}

func estimateTokens(s string, charsPerToken int) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}
