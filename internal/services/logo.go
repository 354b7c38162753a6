package services

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/valuematch/valuematch-backend/internal/logger"
)

// LogoService maps a company to a logo URL. Resolution is best-effort and
// never fails: a CDN probe by domain, then candidate domains derived from the
// name, then a deterministic generated placeholder.
type LogoService interface {
	ResolveLogoURL(ctx context.Context, name string, siteURL string) string
}

type logoService struct {
	log        *logger.Logger
	bucket     BucketService
	httpClient *http.Client
	cdnBase    string

	fontFace font.Face
	palette  []color.NRGBA
}

// logoPalette is fixed so the character-sum hash of a name always lands on
// the same background color.
var logoPalette = []color.NRGBA{
	{R: 0x4E, G: 0x79, B: 0xA7, A: 0xFF},
	{R: 0xF2, G: 0x8E, B: 0x2B, A: 0xFF},
	{R: 0xE1, G: 0x57, B: 0x59, A: 0xFF},
	{R: 0x76, G: 0xB7, B: 0xB2, A: 0xFF},
	{R: 0x59, G: 0xA1, B: 0x4F, A: 0xFF},
	{R: 0xED, G: 0xC9, B: 0x48, A: 0xFF},
	{R: 0xB0, G: 0x7A, B: 0xA1, A: 0xFF},
	{R: 0xFF, G: 0x9D, B: 0xA7, A: 0xFF},
	{R: 0x9C, G: 0x75, B: 0x5F, A: 0xFF},
	{R: 0xBA, G: 0xB0, B: 0xAC, A: 0xFF},
}

// NewLogoService builds the resolver. bucket may be nil; PNG placeholders are
// then skipped in favor of the deterministic placeholder URL.
func NewLogoService(log *logger.Logger, bucket BucketService) LogoService {
	serviceLog := log.With("service", "LogoService")

	cdnBase := strings.TrimRight(os.Getenv("LOGO_CDN_BASE_URL"), "/")
	if cdnBase == "" {
		cdnBase = "https://logo.clearbit.com"
	}

	var face font.Face
	fontPath := strings.TrimSpace(os.Getenv("LOGO_FONT"))
	if fontPath != "" {
		loaded, err := loadFontFace(fontPath, 206)
		if err != nil {
			serviceLog.Warn("Could not load logo font; PNG placeholders disabled", "font", fontPath, "error", err)
		} else {
			face = loaded
		}
	}

	return &logoService{
		log:        serviceLog,
		bucket:     bucket,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		cdnBase:    cdnBase,
		fontFace:   face,
		palette:    logoPalette,
	}
}

func (ls *logoService) ResolveLogoURL(ctx context.Context, name string, siteURL string) string {
	name = strings.TrimSpace(name)

	if siteURL != "" {
		if host := hostnameOf(siteURL); host != "" {
			if logo, ok := ls.probe(ctx, host); ok {
				return logo
			}
		}
	}

	for _, domain := range candidateDomains(name) {
		if logo, ok := ls.probe(ctx, domain); ok {
			return logo
		}
	}

	if ls.bucket != nil && ls.fontFace != nil {
		if logo, err := ls.uploadPlaceholder(ctx, name); err == nil {
			return logo
		} else {
			ls.log.Warn("Placeholder logo upload failed; falling back to placeholder URL", "company", name, "error", err)
		}
	}

	return ls.placeholderURL(name)
}

// probe does a HEAD-style existence check against the logo CDN.
func (ls *logoService) probe(ctx context.Context, domain string) (string, bool) {
	target := ls.cdnBase + "/" + domain
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return "", false
	}
	resp, err := ls.httpClient.Do(req)
	if err != nil {
		return "", false
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return target, true
	}
	return "", false
}

func hostnameOf(siteURL string) string {
	raw := strings.TrimSpace(siteURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(parsed.Hostname(), "www.")
	return host
}

// candidateDomains synthesizes 3-6 plausible domains from the company name.
func candidateDomains(name string) []string {
	base := domainSlug(name)
	if base == "" {
		return nil
	}
	trimmed := domainSlug(stripCorpSuffix(name))

	var domains []string
	seen := make(map[string]bool)
	add := func(d string) {
		if d != "" && !seen[d] && len(domains) < 6 {
			seen[d] = true
			domains = append(domains, d)
		}
	}
	if trimmed != "" && trimmed != base {
		add(trimmed + ".com")
		add(trimmed + ".io")
	}
	add(base + ".com")
	add(base + ".io")
	add(base + ".co")
	add(base + ".net")
	return domains
}

func domainSlug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var corpSuffixes = []string{"inc", "inc.", "corp", "corp.", "corporation", "ltd", "ltd.", "llc", "co", "co.", "gmbh", "kk", "k.k."}

func stripCorpSuffix(name string) string {
	words := strings.Fields(strings.ToLower(name))
	if len(words) < 2 {
		return name
	}
	last := words[len(words)-1]
	for _, suffix := range corpSuffixes {
		if last == suffix {
			return strings.Join(words[:len(words)-1], " ")
		}
	}
	return name
}

// placeholderURL is fully deterministic: same name, same initials, same
// color.
func (ls *logoService) placeholderURL(name string) string {
	c := ls.hashColor(name)
	hexColor := fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)
	initials := companyInitials(name)
	return fmt.Sprintf("https://ui-avatars.com/api/?name=%s&background=%s&color=fff&size=512", url.QueryEscape(initials), hexColor)
}

func (ls *logoService) hashColor(name string) color.NRGBA {
	sum := 0
	for _, r := range name {
		sum += int(r)
	}
	if sum < 0 {
		sum = -sum
	}
	return ls.palette[sum%len(ls.palette)]
}

func companyInitials(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return "?"
	}
	first := strings.ToUpper(string([]rune(words[0])[0]))
	if len(words) == 1 {
		return first
	}
	second := strings.ToUpper(string([]rune(words[1])[0]))
	return first + second
}

func (ls *logoService) uploadPlaceholder(ctx context.Context, name string) (string, error) {
	const size = 512

	dc := gg.NewContext(size, size)
	dc.DrawCircle(float64(size)/2, float64(size)/2, float64(size)/2)
	dc.Clip()

	dc.SetColor(ls.hashColor(name))
	dc.DrawRectangle(0, 0, float64(size), float64(size))
	dc.Fill()

	initials := companyInitials(name)
	dc.SetFontFace(ls.fontFace)
	tw, th := dc.MeasureString(initials)
	cx, cy := float64(size)/2, float64(size)/2
	dc.SetColor(color.White)
	dc.DrawString(initials, cx-(tw/2)+5, cy+(th/2)-10)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return "", fmt.Errorf("failed to encode PNG: %w", err)
	}

	// Key is derived from the name only, so re-resolution overwrites in place
	// instead of piling up objects.
	key := fmt.Sprintf("company_logo/%s.png", domainSlug(name))
	if err := ls.bucket.UploadFile(ctx, key, bytes.NewReader(buf.Bytes())); err != nil {
		return "", fmt.Errorf("failed to upload placeholder logo: %w", err)
	}
	return ls.bucket.GetPublicURL(key), nil
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	face := truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	return face, nil
}
