package polymarket

// client.go: HTTP client de solo lectura para las APIs públicas de Polymarket.
//
// No hay endpoints de órdenes: el cliente solo expone GETs. El rate limiting y
// los reintentos viven fuera (ratelimit.Bucket + retry.Do), así que aquí cada
// llamada es un único intento y el error sale clasificado:
//
//	429      → domain.RateLimitedError (con Retry-After si viene)
//	5xx      → domain.ServerError
//	4xx      → domain.ClientError
//	timeout  → domain.TimeoutError

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/airhao3/jmm-trade/internal/domain"
)

const (
	defaultDataBase  = "https://data-api.polymarket.com"
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// Config contiene los base URLs y el timeout por request.
type Config struct {
	DataBase  string
	CLOBBase  string
	GammaBase string
	Timeout   time.Duration
	APIKey    string // opcional, scope de lectura
}

// Client es el HTTP client de Polymarket.
type Client struct {
	http      *http.Client
	dataBase  string
	clobBase  string
	gammaBase string
	apiKey    string
}

// NewClient crea un Client. Los URLs vacíos usan los de producción.
func NewClient(cfg Config) *Client {
	if cfg.DataBase == "" {
		cfg.DataBase = defaultDataBase
	}
	if cfg.CLOBBase == "" {
		cfg.CLOBBase = defaultCLOBBase
	}
	if cfg.GammaBase == "" {
		cfg.GammaBase = defaultGammaBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		dataBase:  strings.TrimRight(cfg.DataBase, "/"),
		clobBase:  strings.TrimRight(cfg.CLOBBase, "/"),
		gammaBase: strings.TrimRight(cfg.GammaBase, "/"),
		apiKey:    cfg.APIKey,
	}
}

// get hace un único GET y decodifica el JSON en out.
func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &domain.RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return &domain.ServerError{Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &domain.ClientError{Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// classifyTransport separa cancelaciones del llamador de timeouts de red.
func classifyTransport(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &domain.TimeoutError{Err: err}
	}
	return fmt.Errorf("transport: %w", err)
}

// parseRetryAfter acepta segundos o una fecha HTTP. 0 si no se puede leer.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
