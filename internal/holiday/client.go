// Package holiday предоставляет клиент для внешнего сервиса государственных праздников.
package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом праздников
// и кэширует ответы по годам.
type Client struct {
	baseURL     string
	countryCode string
	httpClient  *retryablehttp.Client

	mu    sync.Mutex
	cache map[int]map[string]struct{} // год -> множество дат YYYY-MM-DD
}

// publicHoliday описывает один праздник в ответе сервиса.
type publicHoliday struct {
	Date      string `json:"date"` // YYYY-MM-DD
	LocalName string `json:"localName"`
	Name      string `json:"name"`
}

// NewClient создаёт клиент сервиса праздников для указанного адреса и страны.
func NewClient(baseURL, countryCode string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		countryCode: countryCode,
		httpClient:  rc,
		cache:       make(map[int]map[string]struct{}),
	}
}

// IsHoliday сообщает, является ли дата государственным праздником.
// Список праздников на год запрашивается один раз и кэшируется.
func (c *Client) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	if c == nil || c.baseURL == "" {
		return false, fmt.Errorf("holiday client not configured")
	}

	year := date.Year()

	days, err := c.holidaysForYear(ctx, year)
	if err != nil {
		return false, err
	}

	_, ok := days[date.Format("2006-01-02")]
	return ok, nil
}

func (c *Client) holidaysForYear(ctx context.Context, year int) (map[string]struct{}, error) {
	c.mu.Lock()
	if days, ok := c.cache[year]; ok {
		c.mu.Unlock()
		return days, nil
	}
	c.mu.Unlock()

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	url := fmt.Sprintf("%s/api/v3/PublicHolidays/%d/%s", base, year, c.countryCode)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var holidays []publicHoliday
	if err := json.NewDecoder(resp.Body).Decode(&holidays); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	days := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		days[h.Date] = struct{}{}
	}

	c.mu.Lock()
	c.cache[year] = days
	c.mu.Unlock()

	return days, nil
}
