// Package llmstream turns an incremental LLM token stream into discrete,
// validated JSON payloads using in-band text markers: a per-item separator
// and a terminal sentinel.
package llmstream

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/valuematch/valuematch-backend/internal/logger"
)

const (
	DefaultSeparator = "---COMPANY_SEPARATOR---"
	DefaultSentinel  = "---END_OF_RECOMMENDATIONS---"
)

// objectPattern grabs the outermost {...} span for fallback recovery when a
// payload carries prefix/suffix junk around the JSON object.
var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Parser accumulates streamed fragments and splits them at the separator
// marker. It owns the remainder after every split. Once the sentinel is seen
// the parser is terminated: further fragments are ignored and no partial
// remainder is ever flushed.
type Parser struct {
	separator  string
	sentinel   string
	buf        strings.Builder
	terminated bool
	log        *logger.Logger
}

func NewParser(separator, sentinel string, log *logger.Logger) *Parser {
	if separator == "" {
		separator = DefaultSeparator
	}
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	if log != nil {
		log = log.With("component", "LLMStreamParser")
	}
	return &Parser{
		separator: separator,
		sentinel:  sentinel,
		log:       log,
	}
}

// Feed appends one fragment and returns every payload completed by it, in
// stream order. Malformed items are dropped, never returned and never fatal.
func (p *Parser) Feed(fragment string) []string {
	if p.terminated || fragment == "" {
		return nil
	}
	p.buf.WriteString(fragment)

	var payloads []string
	buf := p.buf.String()
	for {
		sepIdx := strings.Index(buf, p.separator)
		endIdx := strings.Index(buf, p.sentinel)

		// Sentinel before the next separator terminates the stream; anything
		// still buffered is an unfinished item and is discarded.
		if endIdx >= 0 && (sepIdx < 0 || endIdx < sepIdx) {
			p.terminated = true
			buf = ""
			break
		}
		if sepIdx < 0 {
			break
		}

		candidate := buf[:sepIdx]
		buf = buf[sepIdx+len(p.separator):]

		if payload, ok := p.validate(candidate); ok {
			payloads = append(payloads, payload)
		}
	}

	p.buf.Reset()
	p.buf.WriteString(buf)
	return payloads
}

// Flush validates whatever is still buffered when the stream ends without a
// sentinel. A terminated parser never flushes.
func (p *Parser) Flush() []string {
	if p.terminated {
		return nil
	}
	remainder := p.buf.String()
	p.buf.Reset()
	if strings.TrimSpace(remainder) == "" {
		return nil
	}
	if payload, ok := p.validate(remainder); ok {
		return []string{payload}
	}
	return nil
}

// Terminated reports whether the sentinel has been seen.
func (p *Parser) Terminated() bool {
	return p.terminated
}

// requiredFields is the minimal shape a payload must carry to be worth
// handing to the orchestrator.
type requiredFields struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

func (p *Parser) validate(candidate string) (string, bool) {
	cleaned := clean(candidate)
	if cleaned == "" {
		return "", false
	}
	if !strings.HasPrefix(cleaned, "{") || !strings.Contains(cleaned, "}") {
		if p.log != nil {
			p.log.Warn("Dropping non-object stream item", "prefix", truncate(cleaned, 60))
		}
		return "", false
	}

	if checkFields(cleaned) {
		return cleaned, true
	}

	// Fallback: the model sometimes wraps the object in commentary. Extract
	// the widest {...} span and try once more.
	recovered := objectPattern.FindString(cleaned)
	if recovered != "" && checkFields(recovered) {
		return recovered, true
	}

	if p.log != nil {
		p.log.Warn("Dropping malformed stream item", "prefix", truncate(cleaned, 60))
	}
	return "", false
}

func checkFields(payload string) bool {
	var fields requiredFields
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return false
	}
	return strings.TrimSpace(fields.Name) != "" && strings.TrimSpace(fields.Industry) != ""
}

func clean(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.ReplaceAll(s, "`", "")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary so the log line stays valid UTF-8.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
