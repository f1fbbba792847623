package providers

import (
	"io"

	"github.com/pkg/browser"
)

func init() {
	// Keep launcher output off the terminal.
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// WebBrowser opens URLs in the system browser.
type WebBrowser struct {
	open func(url string) error
}

// NewWebBrowser returns a browser backed by the OS default handler.
func NewWebBrowser() *WebBrowser {
	return &WebBrowser{open: browser.OpenURL}
}

// OpenURL opens url.
func (w *WebBrowser) OpenURL(url string) error {
	return w.open(url)
}
