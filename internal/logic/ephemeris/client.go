package ephemeris

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cjeanneret/skytrack/internal/debug"
)

// ErrFetch wraps every failure to obtain ephemeris text.
var ErrFetch = errors.New("ephemeris fetch failed")

// maxBodyBytes bounds the response read from the catalog.
const maxBodyBytes = 8 << 20

// bodies maps common names to Horizons COMMAND ids.
var bodies = map[string]string{
	"sun":     "10",
	"moon":    "301",
	"mercury": "199",
	"venus":   "299",
	"mars":    "499",
	"jupiter": "599",
	"saturn":  "699",
}

// ObjectID resolves a body name to its Horizons id. Unknown names are
// passed through so raw ids and designations keep working.
func ObjectID(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if id, ok := bodies[key]; ok {
		return id
	}
	return strings.TrimSpace(name)
}

// Request describes one observer table.
type Request struct {
	Object   string
	Start    time.Time
	Stop     time.Time
	StepSize string // e.g. "1 m"
	LatDeg   float64
	LonDeg   float64
	AltM     float64
}

// Client fetches observer tables from a Horizons-compatible API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a Client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Query builds the API query string for r.
func (r Request) Query() url.Values {
	q := url.Values{}
	q.Set("format", "text")
	q.Set("COMMAND", "'"+ObjectID(r.Object)+"'")
	q.Set("OBJ_DATA", "NO")
	q.Set("MAKE_EPHEM", "YES")
	q.Set("EPHEM_TYPE", "OBSERVER")
	q.Set("CENTER", "'coord@399'")
	q.Set("COORD_TYPE", "'GEODETIC'")
	q.Set("SITE_COORD", fmt.Sprintf("'%.6f,%.6f,%.4f'", r.LonDeg, r.LatDeg, r.AltM/1000))
	q.Set("START_TIME", "'"+r.Start.UTC().Format(TimeLayout)+"'")
	q.Set("STOP_TIME", "'"+r.Stop.UTC().Format(TimeLayout)+"'")
	q.Set("STEP_SIZE", "'"+r.StepSize+"'")
	q.Set("TABLE_TYPE", "'OBSERVER'")
	q.Set("ANG_FORMAT", "'DEG'")
	q.Set("CSV_FORMAT", "'YES'")
	q.Set("QUANTITIES", "'2'")
	return q
}

// Fetch downloads the raw table. There is no retry: callers decide.
func (c *Client) Fetch(ctx context.Context, r Request) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: base url: %v", ErrFetch, err)
	}
	u.RawQuery = r.Query().Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	debug.Info("Fetching ephemeris for %s (%s .. %s)", r.Object, r.Start.UTC().Format(TimeLayout), r.Stop.UTC().Format(TimeLayout))
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	debug.Verbose("Ephemeris response: %d bytes", len(body))
	return string(body), nil
}
