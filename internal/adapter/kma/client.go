package kma

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/couchcryptid/coil-condensation-monitor/internal/domain"
	"github.com/couchcryptid/coil-condensation-monitor/internal/observability"
)

// Endpoint paths relative to the open API base URL.
const (
	pathCurrent   = "/VilageFcstInfoService_2.0/getUltraSrtNcst"
	pathShort     = "/VilageFcstInfoService_2.0/getVilageFcst"
	pathMidTemp   = "/MidFcstInfoService/getMidTa"
	pathMidLand   = "/MidFcstInfoService/getMidLandFcst"
	resultOK      = "00"
	shortPageSize = "1000"
)

// ResultError is a well-formed response whose header carries a non-success code.
type ResultError struct {
	Endpoint string
	Code     string
	Message  string
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("kma %s: result %s: %s", e.Endpoint, e.Code, e.Message)
}

// Options configures the forecast grid and regions.
type Options struct {
	BaseURL       string
	Timeout       time.Duration
	GridX, GridY  int
	MidTempRegion string
	MidLandRegion string
}

// Client implements domain.WeatherProvider using the KMA open API.
type Client struct {
	http          *resty.Client
	keys          KeySource
	gridX, gridY  int
	midTempRegion string
	midLandRegion string
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewClient creates a KMA client.
func NewClient(opts Options, keys KeySource, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		http:          resty.New().SetBaseURL(opts.BaseURL).SetTimeout(opts.Timeout),
		keys:          keys,
		gridX:         opts.GridX,
		gridY:         opts.GridY,
		midTempRegion: opts.MidTempRegion,
		midLandRegion: opts.MidLandRegion,
		metrics:       metrics,
		logger:        logger,
	}
}

// CurrentTemperature returns T1H from the latest completed hourly observation.
func (c *Client) CurrentTemperature(ctx context.Context) (float64, error) {
	keys, err := c.keys.Keys(ctx)
	if err != nil {
		return 0, err
	}
	if keys.Short == "" {
		return 0, domain.ErrMissingCredential
	}

	date, hhmm := currentBase(domain.Now())
	items, err := c.fetch(ctx, "current", pathCurrent, map[string]string{
		"serviceKey": keys.Short,
		"base_date":  date,
		"base_time":  hhmm,
		"nx":         strconv.Itoa(c.gridX),
		"ny":         strconv.Itoa(c.gridY),
	})
	if err != nil {
		return 0, err
	}

	var obs []observation
	if err := json.Unmarshal(items, &obs); err != nil {
		return 0, fmt.Errorf("decode observation: %w", err)
	}
	for _, o := range obs {
		if o.Category == "T1H" {
			return float64(o.Value), nil
		}
	}
	return 0, fmt.Errorf("kma current: no T1H in observation %s %s", date, hhmm)
}

// ShortRange returns the short-range forecast grid samples. When the expected
// base time fails for any reason other than cancellation, earlier base times
// of the same day are tried in turn.
func (c *Client) ShortRange(ctx context.Context) ([]domain.ShortRangeSample, error) {
	keys, err := c.keys.Keys(ctx)
	if err != nil {
		return nil, err
	}
	if keys.Short == "" {
		return nil, domain.ErrMissingCredential
	}

	date, start := shortBase(domain.Now())
	var lastErr error
	for _, bt := range shortBaseTimes[start:] {
		hhmm := fmt.Sprintf("%02d00", bt)
		items, err := c.fetch(ctx, "short", pathShort, map[string]string{
			"serviceKey": keys.Short,
			"base_date":  date,
			"base_time":  hhmm,
			"nx":         strconv.Itoa(c.gridX),
			"ny":         strconv.Itoa(c.gridY),
			"numOfRows":  shortPageSize,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			c.logger.Warn("short-range base time unavailable, trying earlier", "base_date", date, "base_time", hhmm, "error", err)
			c.metrics.WeatherRequests.WithLabelValues("short", "retry").Inc()
			lastErr = err
			continue
		}
		return decodeShortRange(items)
	}
	return nil, fmt.Errorf("no short-range forecast published for %s: %w", date, lastErr)
}

// MidRange returns per-day forecasts rebased to offsets from today. Before
// 18:00 the previous evening's run is used when the morning run fails.
func (c *Client) MidRange(ctx context.Context) ([]domain.MidRangeDay, error) {
	keys, err := c.keys.Keys(ctx)
	if err != nil {
		return nil, err
	}
	if keys.Mid == "" {
		return nil, domain.ErrMissingCredential
	}

	now := domain.Now()
	issued, fallback, hasFallback := midIssue(now)
	days, err := c.midRange(ctx, keys.Mid, issued, now)
	if err == nil || !hasFallback {
		return days, err
	}
	if ctx.Err() != nil {
		return nil, err
	}
	c.logger.Warn("mid-range run unavailable, using previous evening", "tm_fc", issued.Format("200601021504"), "error", err)
	c.metrics.WeatherRequests.WithLabelValues("mid_temp", "retry").Inc()
	return c.midRange(ctx, keys.Mid, fallback, now)
}

func (c *Client) midRange(ctx context.Context, key string, issued, now time.Time) ([]domain.MidRangeDay, error) {
	tmFc := issued.Format("200601021504")
	tempItems, err := c.fetch(ctx, "mid_temp", pathMidTemp, map[string]string{
		"serviceKey": key,
		"regId":      c.midTempRegion,
		"tmFc":       tmFc,
	})
	if err != nil {
		return nil, err
	}
	landItems, err := c.fetch(ctx, "mid_land", pathMidLand, map[string]string{
		"serviceKey": key,
		"regId":      c.midLandRegion,
		"tmFc":       tmFc,
	})
	if err != nil {
		return nil, err
	}
	return decodeMidRange(tempItems, landItems, daysBetween(issued, now))
}

// fetch performs one GET and returns the raw response.body.items.item value.
func (c *Client) fetch(ctx context.Context, endpoint, path string, params map[string]string) (json.RawMessage, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("dataType", "JSON").
		Get(path)
	c.metrics.WeatherAPIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("kma %s request: %w", endpoint, err)
	}
	if resp.StatusCode() != 200 {
		c.metrics.WeatherRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("kma %s: status %d: %s", endpoint, resp.StatusCode(), resp.Body())
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		c.metrics.WeatherRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("kma %s: decode response: %w", endpoint, err)
	}
	h := env.Response.Header
	if h.ResultCode != resultOK {
		c.metrics.WeatherRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, &ResultError{Endpoint: endpoint, Code: h.ResultCode, Message: h.ResultMsg}
	}
	c.metrics.WeatherRequests.WithLabelValues(endpoint, "success").Inc()
	return env.Response.Body.Items.Item, nil
}

func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
