// Package i18n localizes user-facing text: the stats report and API error
// messages.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

// Locale is a localizer plus the printer used for numbers.
type Locale struct {
	Tag       language.Tag
	localizer *i18n.Localizer
	printer   *message.Printer
}

var (
	mu     sync.RWMutex
	bundle *i18n.Bundle
)

// Init loads the translation bundle with lang as the fallback language.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
			return fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		slog.Debug("loaded locale file", "file", e.Name())
	}

	mu.Lock()
	bundle = b
	mu.Unlock()
	return nil
}

func currentBundle() *i18n.Bundle {
	mu.RLock()
	b := bundle
	mu.RUnlock()
	if b != nil {
		return b
	}
	if err := Init("en"); err != nil {
		panic(err)
	}
	mu.RLock()
	defer mu.RUnlock()
	return bundle
}

// NewLocale creates a locale for the given language. Unknown languages
// fall back to the bundle default.
func NewLocale(lang string) *Locale {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	return &Locale{
		Tag:       tag,
		localizer: i18n.NewLocalizer(currentBundle(), lang),
		printer:   message.NewPrinter(tag),
	}
}

// WithLocale stores a locale in the context.
func WithLocale(ctx context.Context, loc *Locale) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func localeFromCtx(ctx context.Context) *Locale {
	if loc, ok := ctx.Value(ctxKey{}).(*Locale); ok {
		return loc
	}
	return NewLocale("en")
}

func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	s, err := localeFromCtx(ctx).localizer.Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

// T translates a message by ID.
func T(ctx context.Context, msgID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message by ID.
func Tp(ctx context.Context, msgID string, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}

// Percent formats a fraction in [0, 1] as a percentage with one decimal
// in the locale's number format.
func Percent(ctx context.Context, f float64) string {
	return localeFromCtx(ctx).printer.Sprintf("%.1f%%", f*100)
}

// Number formats an integer with the locale's digit grouping.
func Number(ctx context.Context, n int64) string {
	return localeFromCtx(ctx).printer.Sprintf("%d", n)
}

// Duration formats seconds as hours and minutes.
func Duration(ctx context.Context, seconds int64) string {
	d := time.Duration(seconds) * time.Second
	return Td(ctx, "Duration", map[string]any{
		"Hours":   int(d.Hours()),
		"Minutes": int(d.Minutes()) % 60,
	})
}

// Lang returns the base language of the context's locale, e.g. "ru".
func Lang(ctx context.Context) string {
	base, _ := localeFromCtx(ctx).Tag.Base()
	return base.String()
}
