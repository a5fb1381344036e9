package headless

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
)

// consentSelectors are probed in order; the first visible match is clicked.
var consentSelectors = []string{
	`button[id*="accept"]`,
	`button[id*="agree"]`,
	`button[class*="accept"]`,
	`button[class*="agree"]`,
	`[data-testid*="accept"]`,
	`[data-testid*="agree"]`,
	`.cookie-accept`,
	`.cookie-agree`,
	`#cookie-accept`,
	`#cookie-agree`,
}

const consentProbeTimeout = time.Second

// consentTextScript clicks the first visible button whose label is a common consent phrase.
const consentTextScript = `(() => {
  const labels = ["accept", "agree", "ok", "got it", "i understand", "continue"];
  for (const el of document.querySelectorAll("button")) {
    const text = (el.innerText || el.textContent || "").trim().toLowerCase();
    if (!labels.includes(text)) continue;
    const rect = el.getBoundingClientRect();
    if (rect.width === 0 || rect.height === 0) continue;
    el.click();
    return text;
  }
  return "";
})()`

// dismissCookieConsent returns what it clicked, or "" when no consent control was found.
// Every failure is swallowed; consent handling never fails a fetch.
func dismissCookieConsent(ctx context.Context) string {
	for _, sel := range consentSelectors {
		if ctx.Err() != nil {
			return ""
		}
		if clickIfVisible(ctx, sel) {
			return sel
		}
	}
	var clicked string
	probeCtx, cancel := context.WithTimeout(ctx, consentProbeTimeout)
	defer cancel()
	if err := chromedp.Evaluate(consentTextScript, &clicked).Do(probeCtx); err != nil {
		return ""
	}
	if clicked != "" {
		return "text:" + clicked
	}
	return ""
}

func clickIfVisible(ctx context.Context, sel string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, consentProbeTimeout)
	defer cancel()
	if err := chromedp.WaitVisible(sel, chromedp.ByQuery).Do(probeCtx); err != nil {
		return false
	}
	clickCtx, cancelClick := context.WithTimeout(ctx, consentProbeTimeout)
	defer cancelClick()
	return chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible).Do(clickCtx) == nil
}
