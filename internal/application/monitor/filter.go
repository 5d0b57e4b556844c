package monitor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/airhao3/jmm-trade/internal/domain"
)

// FilterConfig contiene los parámetros configurables de filtrado de mercados.
type FilterConfig struct {
	// Enabled=false deja pasar todos los trades nuevos.
	Enabled bool
	// Assets: el título debe mencionar al menos uno (case-insensitive, palabra literal).
	Assets []string
	// Keywords: el título debe contener al menos una. Vacío = sin restricción.
	Keywords []string
	// Exclude: el título no debe contener ninguna.
	Exclude []string
	// Rango inclusivo de duración del mercado, en minutos.
	MinDurationMinutes int
	MaxDurationMinutes int
}

// DefaultFilterConfig: mercados cortos de BTC/ETH de tipo up/down.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Enabled:            true,
		Assets:             []string{"BTC", "ETH", "Bitcoin", "Ethereum"},
		Keywords:           []string{"up", "down", "higher", "lower"},
		MinDurationMinutes: 5,
		MaxDurationMinutes: 15,
	}
}

var (
	// "15 min", "5-minute", "15min"
	minutesPhrase = regexp.MustCompile(`(?i)\b(\d+)\s*[-–]?\s*(?:min|minute)s?\b`)
	// "10:00AM-10:15AM", "9:45 PM – 10 PM"
	clockRange = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*([AP]M)\s*[-–]\s*(\d{1,2})(?::(\d{2}))?\s*([AP]M)\b`)
	// "btc-updown-15m-1767225600", "eth-updown-1h"
	slugWindow = regexp.MustCompile(`(?i)(?:^|-)(\d+)(m|h)(?:-|$)`)
)

// Filter decide si un trade observado se replica.
type Filter struct {
	cfg      FilterConfig
	assetRe  *regexp.Regexp
	keywords []string
	exclude  []string
}

// NewFilter crea un Filter con la configuración dada.
func NewFilter(cfg FilterConfig) *Filter {
	f := &Filter{
		cfg:      cfg,
		keywords: lowerAll(cfg.Keywords),
		exclude:  lowerAll(cfg.Exclude),
	}
	if len(cfg.Assets) > 0 {
		quoted := make([]string, 0, len(cfg.Assets))
		for _, a := range cfg.Assets {
			if a = strings.TrimSpace(a); a != "" {
				quoted = append(quoted, regexp.QuoteMeta(a))
			}
		}
		if len(quoted) > 0 {
			f.assetRe = regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
		}
	}
	return f
}

// Passes devuelve true si el trade supera todos los criterios.
// reason describe el primer criterio que falló (para logs).
func (f *Filter) Passes(t domain.ObservedTrade) (ok bool, reason string) {
	if !f.cfg.Enabled {
		return true, ""
	}

	title := t.Title
	if title == "" {
		return false, "empty title"
	}
	lower := strings.ToLower(title)

	if f.assetRe != nil && !f.assetRe.MatchString(title) {
		return false, "asset"
	}

	if len(f.keywords) > 0 && !containsAny(lower, f.keywords) {
		return false, "keyword"
	}

	if containsAny(lower, f.exclude) {
		return false, "excluded"
	}

	// Sin duración determinable el trade pasa.
	if mins, found := MarketDurationMinutes(t); found {
		if mins < float64(f.cfg.MinDurationMinutes) || mins > float64(f.cfg.MaxDurationMinutes) {
			return false, "duration"
		}
	}

	return true, ""
}

// MarketDurationMinutes estima la duración del mercado de un trade.
// Orden: start/end explícitos, "N min" en el título, rango horario en el
// título, token "-Nm-" en el slug.
func MarketDurationMinutes(t domain.ObservedTrade) (float64, bool) {
	if m, ok := t.WindowMinutes(); ok {
		return m, true
	}
	if m := minutesPhrase.FindStringSubmatch(t.Title); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return float64(n), true
		}
	}
	if m, ok := clockRangeMinutes(t.Title); ok {
		return m, true
	}
	for _, s := range []string{t.Slug, t.EventSlug} {
		if m := slugWindow.FindStringSubmatch(s); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if strings.EqualFold(m[2], "h") {
				n *= 60
			}
			return float64(n), true
		}
	}
	return 0, false
}

func clockRangeMinutes(title string) (float64, bool) {
	m := clockRange.FindStringSubmatch(title)
	if m == nil {
		return 0, false
	}
	from, ok1 := clockMinutes(m[1], m[2], m[3])
	to, ok2 := clockMinutes(m[4], m[5], m[6])
	if !ok1 || !ok2 {
		return 0, false
	}
	d := to - from
	if d <= 0 {
		d += 24 * 60 // cruza medianoche
	}
	return float64(d), true
}

// clockMinutes convierte "h[:mm] AM/PM" a minutos desde medianoche.
func clockMinutes(h, mm, ampm string) (int, bool) {
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 1 || hour > 12 {
		return 0, false
	}
	minute := 0
	if mm != "" {
		if minute, err = strconv.Atoi(mm); err != nil || minute > 59 {
			return 0, false
		}
	}
	hour %= 12
	if strings.EqualFold(ampm, "PM") {
		hour += 12
	}
	return hour*60 + minute, true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
