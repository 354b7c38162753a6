package llmstream

import (
	"encoding/json"
	"testing"
	"unicode/utf8"
)

const (
	sep = DefaultSeparator
	end = DefaultSentinel
)

func feedAll(t *testing.T, p *Parser, fragments ...string) []string {
	t.Helper()
	var out []string
	for _, f := range fragments {
		out = append(out, p.Feed(f)...)
	}
	return out
}

func TestEmitsItemsInOrder(t *testing.T) {
	p := NewParser(sep, end, nil)

	stream := `{"name":"Acme","industry":"Tech","matching_points":["a"]}` + sep +
		`{"name":"Beta","industry":"Retail","matching_points":["b"]}` + sep + end

	payloads := feedAll(t, p, stream)
	if len(payloads) != 2 {
		t.Fatalf("payloads=%d, want 2", len(payloads))
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(payloads[0]), &first); err != nil {
		t.Fatalf("unmarshal first: %v", err)
	}
	if first["name"] != "Acme" {
		t.Fatalf("first name=%v, want Acme", first["name"])
	}
	var second map[string]any
	if err := json.Unmarshal([]byte(payloads[1]), &second); err != nil {
		t.Fatalf("unmarshal second: %v", err)
	}
	if second["name"] != "Beta" {
		t.Fatalf("second name=%v, want Beta", second["name"])
	}
	if !p.Terminated() {
		t.Fatal("parser should be terminated after sentinel")
	}
}

func TestAccumulatesAcrossFragments(t *testing.T) {
	p := NewParser(sep, end, nil)

	payloads := feedAll(t, p,
		`{"name":"Acme"`,
		`,"industry":"Tech","matching_points":[]}`+sep+end,
	)
	if len(payloads) != 1 {
		t.Fatalf("payloads=%d, want 1", len(payloads))
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(payloads[0]), &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if obj["name"] != "Acme" {
		t.Fatalf("name=%v, want Acme", obj["name"])
	}
	if !p.Terminated() {
		t.Fatal("expected terminated")
	}
}

func TestDropsMalformedItemAndContinues(t *testing.T) {
	p := NewParser(sep, end, nil)

	stream := `{"name":"Acme","industry":"Tech"}` + sep +
		`{"name":"Broken","industry":` + sep +
		`{"name":"Beta","industry":"Retail"}` + sep + end

	payloads := feedAll(t, p, stream)
	if len(payloads) != 2 {
		t.Fatalf("payloads=%d, want 2 (malformed dropped)", len(payloads))
	}
}

func TestDropsItemMissingIndustry(t *testing.T) {
	p := NewParser(sep, end, nil)

	payloads := feedAll(t, p, `{"name":"Acme"}`+sep+end)
	if len(payloads) != 0 {
		t.Fatalf("payloads=%d, want 0", len(payloads))
	}
	if !p.Terminated() {
		t.Fatal("expected terminated")
	}
}

func TestStripsMarkdownFences(t *testing.T) {
	p := NewParser(sep, end, nil)

	payloads := feedAll(t, p, "```json\n{\"name\":\"Acme\",\"industry\":\"Tech\"}\n```"+sep+end)
	if len(payloads) != 1 {
		t.Fatalf("payloads=%d, want 1", len(payloads))
	}
}

func TestFallbackExtractsEmbeddedObject(t *testing.T) {
	p := NewParser(sep, end, nil)

	payloads := feedAll(t, p, `{x {"name":"Acme","industry":"Tech"}`+sep+end)
	if len(payloads) != 1 {
		t.Fatalf("payloads=%d, want 1 (recovered)", len(payloads))
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(payloads[0]), &obj); err != nil {
		t.Fatalf("recovered payload is not valid JSON: %v", err)
	}
}

func TestSentinelStopsConsumption(t *testing.T) {
	p := NewParser(sep, end, nil)

	payloads := feedAll(t, p,
		`{"name":"Acme","industry":"Tech"}`+sep+end,
		`{"name":"After","industry":"Ignored"}`+sep,
	)
	if len(payloads) != 1 {
		t.Fatalf("payloads=%d, want 1 (nothing after sentinel)", len(payloads))
	}
	if !p.Terminated() {
		t.Fatal("expected terminated")
	}
}

func TestNoPartialFlushOnSentinel(t *testing.T) {
	p := NewParser(sep, end, nil)

	// An item cut off before its separator is discarded when the sentinel
	// arrives.
	payloads := feedAll(t, p, `{"name":"Acme","industry":"Tech"}`+end)
	if len(payloads) != 0 {
		t.Fatalf("payloads=%d, want 0", len(payloads))
	}
	if !p.Terminated() {
		t.Fatal("expected terminated")
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	// Japanese payload prefixes must not be cut mid-rune.
	s := "会社名が不正です会社名が不正です"
	for n := 1; n < len(s); n++ {
		got := truncate(s, n)
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%q, %d)=%q is not valid UTF-8", s, n, got)
		}
	}
	if got := truncate("short", 60); got != "short" {
		t.Fatalf("got %q, want unchanged string", got)
	}
}

func TestFlushRecoversTrailingItem(t *testing.T) {
	p := NewParser(sep, end, nil)

	// Stream ended without a sentinel; the buffered item is still usable.
	if got := feedAll(t, p, `{"name":"Acme","industry":"Tech"}`); len(got) != 0 {
		t.Fatalf("payloads=%d, want 0 before flush", len(got))
	}
	payloads := p.Flush()
	if len(payloads) != 1 {
		t.Fatalf("flushed=%d, want 1", len(payloads))
	}
}

func TestFlushAfterSentinelIsEmpty(t *testing.T) {
	p := NewParser(sep, end, nil)

	feedAll(t, p, `{"name":"Acme","industry":"Tech"}`+sep+end)
	if payloads := p.Flush(); len(payloads) != 0 {
		t.Fatalf("flushed=%d, want 0 after sentinel", len(payloads))
	}
}

func TestSeparatorSplitAcrossFragments(t *testing.T) {
	p := NewParser(sep, end, nil)

	full := `{"name":"Acme","industry":"Tech"}` + sep + end
	var payloads []string
	// Feed one byte at a time: markers themselves arrive in pieces.
	for i := 0; i < len(full); i++ {
		payloads = append(payloads, p.Feed(full[i:i+1])...)
	}
	if len(payloads) != 1 {
		t.Fatalf("payloads=%d, want 1", len(payloads))
	}
	if !p.Terminated() {
		t.Fatal("expected terminated")
	}
}
