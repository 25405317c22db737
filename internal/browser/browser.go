// Package browser provides page sessions for the review scrapers: a chromedp
// driver for JavaScript-rendered storefronts and a static colly driver that
// follows links without executing scripts.
package browser

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-analyzer/internal/analysis"
)

// Supported drivers.
const (
	DriverChromedp = "chromedp"
	DriverStatic   = "static"
)

var (
	// ErrElementNotFound means the locator matched nothing on the current page.
	ErrElementNotFound = errors.New("element not found")
	// ErrNotNavigable means the element cannot be activated without a script engine.
	ErrNotNavigable = errors.New("element not navigable")
	// ErrClosed means the page session was already released.
	ErrClosed = errors.New("page closed")
)

// Config selects and tunes a driver.
type Config struct {
	Driver            string
	Headless          bool
	UserAgent         string
	MaxParallel       int
	NavigationTimeout time.Duration
}

// Driver is a Browser that owns process-level resources.
type Driver interface {
	analysis.Browser
	Close()
}

// New builds the configured driver.
func New(cfg Config, logger *zap.Logger) (Driver, error) {
	switch cfg.Driver {
	case DriverChromedp, "":
		return NewChromedp(cfg, logger)
	case DriverStatic:
		return NewStatic(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}
