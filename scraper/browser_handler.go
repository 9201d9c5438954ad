package scraper

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"imoagg/config"
)

const cardSelector = `div[data-cy="l-card"]`

var priceDigitsRegex = regexp.MustCompile(`[^\d]`)
var eurAmountRegex = regexp.MustCompile(`([\d\s.]+)\s*€`)

// BrowserHandler scrapes portals that render result cards client-side
// and lazy-load card imagery on scroll. OLX works this way, so a real
// browser walks the page card by card.
type BrowserHandler struct {
	cfg         *config.SiteConfig
	pw          *playwright.Playwright
	browser     playwright.Browser
	mu          sync.Mutex
	initialized bool
}

func NewBrowserHandler(cfg *config.SiteConfig) *BrowserHandler {
	return &BrowserHandler{cfg: cfg}
}

func (h *BrowserHandler) ID() string {
	return h.cfg.ID
}

func (h *BrowserHandler) ensureBrowser() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.initialized {
		return nil
	}

	var err error
	h.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	h.browser, err = h.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	h.initialized = true
	return nil
}

func (h *BrowserHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.browser != nil {
		h.browser.Close()
	}
	if h.pw != nil {
		h.pw.Stop()
	}
	h.initialized = false
}

func (h *BrowserHandler) Scrape(ctx context.Context) ([]RawItem, error) {
	if err := h.ensureBrowser(); err != nil {
		return nil, err
	}
	defer h.Close()

	browserCtx, err := h.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1366, Height: 768},
		Locale:   playwright.String("ro-RO"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}
	defer browserCtx.Close()

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	log.Printf("%s: navigating to %s", h.cfg.ID, h.cfg.ResultsURL)
	if _, err := page.Goto(h.cfg.ResultsURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(60000),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	h.humanDelay(1500, 2500)
	h.handleConsent(page)

	if _, err := page.WaitForSelector(cardSelector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(15000),
	}); err != nil {
		return nil, fmt.Errorf("result cards never appeared, page layout changed: %w", err)
	}

	cards, err := page.Locator(cardSelector).All()
	if err != nil {
		return nil, fmt.Errorf("locate cards: %w", err)
	}
	log.Printf("%s: found %d result cards", h.cfg.ID, len(cards))

	var items []RawItem
	for _, card := range cards {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		item, ok := h.parseCard(card)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	log.Printf("%s: parsed %d of %d result cards", h.cfg.ID, len(items), len(cards))
	return items, nil
}

func (h *BrowserHandler) parseCard(card playwright.Locator) (RawItem, bool) {
	// Scrolling the card into view triggers its lazy image load.
	card.ScrollIntoViewIfNeeded()

	var item RawItem

	for _, sel := range []string{"h6", "h4"} {
		loc := card.Locator(sel).First()
		if n, _ := loc.Count(); n > 0 {
			if text, err := loc.InnerText(); err == nil {
				item.Title = strings.TrimSpace(text)
				break
			}
		}
	}
	if item.Title == "" {
		return item, false
	}

	href, err := card.Locator("a").First().GetAttribute("href")
	if err != nil || href == "" {
		return item, false
	}
	item.URL = h.absoluteURL(href)
	if item.URL == "" {
		return item, false
	}

	item.PriceEUR = h.cardPrice(card)
	item.LocationText = h.cardLocation(card)
	if img := h.cardImage(card); img != "" {
		item.Images = []string{img}
	}

	return item, true
}

func (h *BrowserHandler) cardPrice(card playwright.Locator) float64 {
	priceLoc := card.Locator(`[data-testid="ad-price"]`).First()
	text := ""
	if n, _ := priceLoc.Count(); n > 0 {
		text, _ = priceLoc.InnerText()
	} else if full, err := card.InnerText(); err == nil {
		if m := eurAmountRegex.FindStringSubmatch(full); m != nil {
			text = m[1]
		}
	}

	digits := priceDigitsRegex.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	price, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0
	}
	return price
}

// cardLocation strips the posting date and city name out of the
// card's "Neighborhood, City - date" line.
func (h *BrowserHandler) cardLocation(card playwright.Locator) string {
	loc := card.Locator(`[data-testid="location-date"]`).First()
	if n, _ := loc.Count(); n == 0 {
		return ""
	}
	raw, err := loc.InnerText()
	if err != nil {
		return ""
	}

	place := strings.SplitN(raw, "-", 2)[0]
	place = strings.ReplaceAll(place, ",", " ")
	return strings.TrimSpace(place)
}

// cardImage prefers the highest-density srcset candidate, falling
// back to src. Placeholder art is discarded.
func (h *BrowserHandler) cardImage(card playwright.Locator) string {
	img := card.Locator("img").First()
	if n, _ := img.Count(); n == 0 {
		return ""
	}

	if srcset, err := img.GetAttribute("srcset"); err == nil && srcset != "" {
		candidates := strings.Split(srcset, ",")
		best := strings.Fields(strings.TrimSpace(candidates[len(candidates)-1]))
		if len(best) > 0 && strings.HasPrefix(best[0], "http") && !strings.Contains(best[0], "no_thumbnail") {
			return best[0]
		}
	}

	if src, err := img.GetAttribute("src"); err == nil {
		if strings.HasPrefix(src, "http") && !strings.Contains(src, "no_thumbnail") {
			return src
		}
	}
	return ""
}

func (h *BrowserHandler) absoluteURL(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}
	base, err := url.Parse(h.cfg.ResultsURL)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}

func (h *BrowserHandler) handleConsent(page playwright.Page) {
	consentSelectors := []string{
		"button#onetrust-accept-btn-handler",
		"button:has-text('Accept')",
		"button:has-text('Sunt de acord')",
	}

	for _, selector := range consentSelectors {
		btn := page.Locator(selector).First()
		if visible, _ := btn.IsVisible(); visible {
			log.Printf("Clicking consent button: %s", selector)
			btn.Click()
			page.WaitForTimeout(1000)
			break
		}
	}
}

func (h *BrowserHandler) humanDelay(minMs, maxMs int) {
	delay := minMs + rand.Intn(maxMs-minMs)
	time.Sleep(time.Duration(delay) * time.Millisecond)
}
