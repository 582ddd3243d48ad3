package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/aluiziolira/go-catalog-ingest/models"
)

// Defaults used when a field is absent from the page. Extraction is
// best-effort: a missing field degrades to its default instead of
// failing the whole record.
const (
	DefaultTitle = "No title found"
	DefaultPrice = "No price found"
)

// ProductParser extracts a structured record from a detail page. One
// concrete implementation exists per supported site shape, so new
// sites are added without touching the orchestrator.
type ProductParser interface {
	Parse(body []byte, pageURL string) (*models.ProductRecord, error)
}

// StorefrontParser parses the data-testid annotated storefront markup.
type StorefrontParser struct{}

// NewStorefrontParser returns the concrete parser for the storefront
// site shape.
func NewStorefrontParser() *StorefrontParser {
	return &StorefrontParser{}
}

var (
	paymentsPattern = regexp.MustCompile(`(?i)\bor\s+(\d+)\s+payments?\b`)
	amountPattern   = regexp.MustCompile(`£\s?\d+(?:\.\d{2})?`)
)

// Parse extracts a ProductRecord from body. Only empty or unreadable
// content is an error; every field branch falls back independently.
func (p *StorefrontParser) Parse(body []byte, pageURL string) (*models.ProductRecord, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty page content for %s", pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html for %s: %w", pageURL, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = DefaultTitle
	}

	price := strings.TrimSpace(doc.Find("div.text-red-600").First().Text())
	if price == "" {
		price = DefaultPrice
	}
	priceValue, priced := ParsePrice(price)

	record := &models.ProductRecord{
		Title:        title,
		Price:        price,
		PriceValue:   priceValue,
		Priced:       priced,
		Images:       extractImages(doc),
		Details:      extractDetails(doc),
		Financing:    extractFinancing(doc),
		PromoTagline: extractTagline(doc),
		SizeOptions:  extractSizeOptions(doc),
		SourceURL:    pageURL,
		ScrapedAt:    time.Now(),
	}
	return record, nil
}

func extractImages(doc *goquery.Document) []string {
	var urls []string
	doc.Find(`div[data-testid^="product-image-"] picture img`).Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			srcset, _ := s.Attr("srcset")
			src = firstSrcsetCandidate(srcset)
		}
		if src == "" {
			return
		}
		src = strings.ReplaceAll(src, "&amp;", "&")
		// Tracking parameters are dropped along with the rest of the
		// query string.
		if idx := strings.Index(src, "?"); idx >= 0 {
			src = src[:idx]
		}
		urls = append(urls, src)
	})
	return Dedupe(urls)
}

func firstSrcsetCandidate(srcset string) string {
	if srcset == "" {
		return ""
	}
	first := strings.TrimSpace(strings.Split(srcset, ",")[0])
	if first == "" {
		return ""
	}
	return strings.Split(first, " ")[0]
}

func extractDetails(doc *goquery.Document) []string {
	container := doc.Find(`[data-testid="product-details-text"]`).First()
	if container.Length() == 0 {
		return nil
	}

	items := container.Find("li")
	if items.Length() > 0 {
		details := make([]string, 0, items.Length())
		items.Each(func(_ int, s *goquery.Selection) {
			if text := strings.TrimSpace(s.Text()); text != "" {
				details = append(details, text)
			}
		})
		return details
	}

	// No list breakdown: fall back to one line per text node, so content
	// separated by <br> or nested elements keeps its line structure.
	var details []string
	for _, node := range container.Nodes {
		collectTextLines(node, &details)
	}
	return details
}

func collectTextLines(n *html.Node, out *[]string) {
	if n.Type == html.TextNode {
		for _, line := range strings.Split(n.Data, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				*out = append(*out, trimmed)
			}
		}
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectTextLines(child, out)
	}
}

func extractFinancing(doc *goquery.Document) *models.Financing {
	button := doc.Find(`button[data-testid="financing-options"]`).First()
	if button.Length() == 0 {
		return nil
	}

	raw := collapseWhitespace(button.Text())
	financing := &models.Financing{RawText: raw}

	if m := paymentsPattern.FindStringSubmatch(raw); m != nil {
		if count, err := strconv.Atoi(m[1]); err == nil {
			financing.PaymentsCount = &count
		}
	}
	if m := amountPattern.FindString(raw); m != "" {
		amount := strings.ReplaceAll(m, "£ ", "£")
		financing.PaymentAmount = &amount
	}
	return financing
}

func extractSizeOptions(doc *goquery.Document) []string {
	var sizes []string
	doc.Find(`[data-testid="product-size-options"] button[data-testid^="item-"]`).Each(func(_ int, s *goquery.Selection) {
		fields := strings.Fields(s.Text())
		if len(fields) == 0 {
			return
		}
		// The size label is the last whitespace-delimited token.
		sizes = append(sizes, fields[len(fields)-1])
	})
	return Dedupe(sizes)
}

func extractTagline(doc *goquery.Document) *string {
	node := doc.Find(`[data-testid="product-tagline"]`).First()
	if node.Length() == 0 {
		return nil
	}
	tagline := collapseWhitespace(node.Text())
	if tagline == "" {
		return nil
	}
	return &tagline
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
