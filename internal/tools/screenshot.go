// File: internal/tools/screenshot.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/loom/api/schemas"
	"github.com/xkilldash9x/loom/internal/config"
)

const capturePageName = "capture_page"

// CapturePage renders a target page in a headless browser, screenshots the
// full viewport, and uploads the image. The tool result is the public asset
// URL followed by the page title.
type CapturePage struct {
	cfg      config.BrowserConfig
	uploader schemas.Uploader
	log      *zap.Logger
}

func NewCapturePage(cfg config.BrowserConfig, uploader schemas.Uploader, logger *zap.Logger) *CapturePage {
	return &CapturePage{
		cfg:      cfg,
		uploader: uploader,
		log:      logger.Named("tools.capture_page"),
	}
}

func (c *CapturePage) Declaration() schemas.ToolDeclaration {
	return schemas.ToolDeclaration{
		Name:        capturePageName,
		Description: "Capture a full-page screenshot of a website and return the uploaded image URL.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "description": "The absolute URL of the page to capture."}
			},
			"required": ["url"]
		}`),
	}
}

type capturePageArgs struct {
	URL string `json:"url"`
}

func (c *CapturePage) Call(ctx context.Context, args []byte) (string, error) {
	var parsed capturePageArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	target, err := normalizeURL(parsed.URL)
	if err != nil {
		return "", err
	}

	captureCtx := ctx
	if c.cfg.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		captureCtx, cancel = context.WithTimeout(ctx, c.cfg.CaptureTimeout)
		defer cancel()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(captureCtx, c.allocatorOptions()...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	start := time.Now()
	var shot []byte
	var pageHTML string
	err = chromedp.Run(browserCtx,
		chromedp.EmulateViewport(int64(c.cfg.ViewportWidth), int64(c.cfg.ViewportHeight)),
		chromedp.Navigate(target),
		chromedp.OuterHTML("html", &pageHTML),
		chromedp.FullScreenshot(&shot, 90),
	)
	if err != nil {
		return "", fmt.Errorf("capturing %s: %w", target, err)
	}

	name := fmt.Sprintf("captures/%s-%d.png", hostOf(target), time.Now().UnixNano())
	assetURL, err := c.uploader.Upload(ctx, name, "image/png", shot)
	if err != nil {
		return "", fmt.Errorf("uploading capture of %s: %w", target, err)
	}

	title := extractTitle(pageHTML)
	c.log.Info("Captured page",
		zap.String("url", target),
		zap.String("asset_url", assetURL),
		zap.Duration("duration", time.Since(start)),
	)
	return fmt.Sprintf("%s (title: %s)", assetURL, title), nil
}

func (c *CapturePage) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	}
	if c.cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if c.cfg.DisableGPU {
		opts = append(opts, chromedp.DisableGPU)
	}
	for _, arg := range c.cfg.Args {
		// Flags arrive as "key" or "key=value".
		key, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

// normalizeURL fills in a missing scheme and rejects anything unparseable.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "page"
	}
	return strings.ReplaceAll(u.Host, ":", "-")
}

// extractTitle walks the parsed document for the first <title> element.
func extractTitle(pageHTML string) string {
	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return title
}

var _ schemas.Tool = (*CapturePage)(nil)
