package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/infra/cache"
	"github.com/openpledge/pledged/internal/infra/observability"
	"github.com/openpledge/pledged/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("client")

// minorUnits is the ISO 4217 fallback table, consulted when the currency
// service is unavailable or returns an unknown code.
var minorUnits = map[string]int32{
	"USD": 2, "EUR": 2, "GBP": 2, "BRL": 2, "CAD": 2, "AUD": 2,
	"CHF": 2, "CNY": 2, "INR": 2, "MXN": 2, "SEK": 2, "NOK": 2,
	"JPY": 0, "KRW": 0, "VND": 0, "CLP": 0, "ISK": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "TND": 3,
}

// CurrencyClient resolves currency minor-unit precision from the
// currency service, with a cache in front and an ISO 4217 fallback.
type CurrencyClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	cache      *cache.InMemory[int32]
	metrics    *observability.Metrics
}

// NewCurrencyClient creates a new CurrencyClient. If baseURL is empty the
// client serves precision lookups from the fallback table only.
func NewCurrencyClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, c *cache.InMemory[int32], metrics *observability.Metrics) *CurrencyClient {
	return &CurrencyClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
		cache:      c,
		metrics:    metrics,
	}
}

type currencyResponse struct {
	Code       string `json:"code"`
	MinorUnits int32  `json:"minor_units"`
}

// Precision returns the number of decimal places for the given currency.
func (c *CurrencyClient) Precision(ctx context.Context, currency string) (int32, error) {
	ctx, span := tracer.Start(ctx, "CurrencyClient.Precision")
	defer span.End()

	code := strings.ToUpper(currency)
	span.SetAttributes(attribute.String("currency.code", code))

	if p, ok := c.cache.Get(code); ok {
		c.metrics.IncrCacheHit("currency-precision")
		return p, nil
	}
	c.metrics.IncrCacheMiss("currency-precision")

	if c.baseURL == "" {
		return c.fallback(code)
	}

	result, err := c.cb.Execute(func() (any, error) {
		var precision int32
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := fmt.Sprintf("%s/v1/currencies/%s", c.baseURL, code)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotFound {
				return &domain.ErrNotFound{Resource: "currency", ID: code}
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("currency API returned status %d", resp.StatusCode)
			}

			var body currencyResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return err
			}
			precision = body.MinorUnits
			return nil
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return precision, nil
	})

	if err != nil {
		c.metrics.IncrExternalError("currency-api")
		// Degrade to the local table rather than failing the operation.
		if p, ok := minorUnits[code]; ok {
			c.cache.Set(code, p)
			return p, nil
		}
		return 0, classifyLookupError(err, code)
	}

	p := result.(int32)
	c.cache.Set(code, p)
	return p, nil
}

func (c *CurrencyClient) fallback(code string) (int32, error) {
	if p, ok := minorUnits[code]; ok {
		c.cache.Set(code, p)
		return p, nil
	}
	return 0, &domain.ErrValidation{Field: "currency", Message: fmt.Sprintf("unknown currency code %q", code)}
}

// classifyLookupError maps a failed upstream lookup for a code the local
// table does not know into the matching domain error.
func classifyLookupError(err error, code string) error {
	var notFound *domain.ErrNotFound
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: "currency-api"}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: "currency precision lookup"}
	case errors.As(err, &notFound):
		return &domain.ErrValidation{Field: "currency", Message: fmt.Sprintf("unknown currency code %q", code)}
	default:
		return &domain.ErrExternalService{Service: "currency-api", Err: err}
	}
}
