// Package upstream fetches consensus rankings from the data provider.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/draftboard/internal/domain/model"
	"github.com/okian/draftboard/pkg/logger"
	"github.com/okian/draftboard/pkg/metrics"
)

// Fetcher performs one round trip per (group, format). It does not retry,
// cache or rate limit. An empty slice is a valid answer, not a failure.
type Fetcher interface {
	Fetch(ctx context.Context, g model.Group, f model.Format) ([]model.Player, error)
}

// Client is the HTTP Fetcher.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	log     logger.Logger
}

// New creates a Client for the provider at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.log == nil {
		c.log = logger.Named("upstream")
	}
	return c
}

type rankingsResponse struct {
	Players []rankedPlayer `json:"players"`
}

type rankedPlayer struct {
	ID        flexString `json:"player_id"`
	Name      string     `json:"player_name"`
	Position  string     `json:"player_position_id"`
	Team      string     `json:"player_team_id"`
	ECR       flexFloat  `json:"rank_ecr"`
	AvgRank   flexFloat  `json:"rank_ave"`
	StdDev    flexFloat  `json:"rank_std"`
	Projected flexFloat  `json:"proj_pts"`
	ImageURL  string     `json:"player_image_url"`
	YahooID   flexString `json:"player_yahoo_id"`
	ESPNID    flexString `json:"player_espn_id"`
	SleeperID flexString `json:"player_sleeper_id"`
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, g model.Group, f model.Format) ([]model.Player, error) {
	start := time.Now()
	players, err := c.fetch(ctx, g, f)
	metrics.RecordUpstreamLatency(string(g), float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordUpstreamError(string(g))
		c.log.Warn(ctx, "upstream fetch failed",
			logger.String("group", string(g)),
			logger.String("format", string(f)),
			logger.Error(err),
		)
		return nil, err
	}
	c.log.Debug(ctx, "upstream fetch ok",
		logger.String("group", string(g)),
		logger.String("format", string(f)),
		logger.Int("players", len(players)),
		logger.Duration("took", time.Since(start)),
	)
	return players, nil
}

func (c *Client) fetch(ctx context.Context, g model.Group, f model.Format) ([]model.Player, error) {
	fail := func(status int, err error) error {
		return &FetchError{Group: g, Format: f, StatusCode: status, Err: err}
	}

	q := url.Values{}
	q.Set("position", string(g))
	q.Set("scoring", string(f))
	endpoint := c.baseURL + "/consensus-rankings?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fail(0, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fail(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBodyBytes))
	if err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", snippet(body)))
	}

	var out rankingsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fail(resp.StatusCode, fmt.Errorf("decode body: %w", err))
	}

	players := make([]model.Player, 0, len(out.Players))
	for _, rp := range out.Players {
		players = append(players, rp.toModel(g))
	}
	return players, nil
}

func (rp rankedPlayer) toModel(g model.Group) model.Player {
	p := model.Player{
		ID:              string(rp.ID),
		Name:            rp.Name,
		Position:        g,
		Team:            rp.Team,
		Rank:            int(rp.ECR),
		AvgRank:         float64(rp.AvgRank),
		StdDev:          float64(rp.StdDev),
		ProjectedPoints: float64(rp.Projected),
		ImageURL:        rp.ImageURL,
	}
	if pos, err := model.ParseGroup(rp.Position); err == nil {
		p.Position = pos
	}
	if p.ID == "" {
		p.ID = rp.Name
	}
	ids := map[string]string{}
	for k, v := range map[string]flexString{"yahoo": rp.YahooID, "espn": rp.ESPNID, "sleeper": rp.SleeperID} {
		if v != "" {
			ids[k] = string(v)
		}
	}
	if len(ids) > 0 {
		p.ExternalIDs = ids
	}
	return p
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	if s == "" {
		s = "<empty body>"
	}
	return s
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*s = flexString(num.String())
	return nil
}

// flexFloat accepts a JSON number or a numeric string. Empty strings are zero.
type flexFloat float64

func (v *flexFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*v = flexFloat(f)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return nil
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("parse %q: %w", str, err)
	}
	*v = flexFloat(f)
	return nil
}
