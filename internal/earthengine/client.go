package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// DefaultBaseURL is the public REST endpoint.
const DefaultBaseURL = "https://earthengine.googleapis.com"

// PublicProject owns the public data catalog assets.
const PublicProject = "earthengine-public"

// Options configures a Client.
type Options struct {
	BaseURL         string
	ProjectID       string
	CredentialsJSON string
	CredentialsFile string
	Timeout         time.Duration
	Logger          zerolog.Logger

	// HTTPClient replaces the OAuth client; tests use it to talk to a fake server
	// without credentials.
	HTTPClient *http.Client
}

// Client calls the Earth Engine REST API. A Client without usable credentials is
// still constructed; every remote call then fails with the credential error.
type Client struct {
	baseURL string
	project string
	http    *http.Client
	timeout time.Duration
	logger  zerolog.Logger

	account *ServiceAccount
	credErr error
	tokens  oauth2.TokenSource
}

// NewClient builds a client. Credential problems are recorded, not returned, so
// the server can start and report them per call.
func NewClient(ctx context.Context, opts Options) *Client {
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		project: opts.ProjectID,
		timeout: opts.Timeout,
		logger:  opts.Logger.With().Str("component", "earthengine").Logger(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.timeout <= 0 {
		c.timeout = 5 * time.Minute
	}

	if opts.HTTPClient != nil {
		c.http = opts.HTTPClient
		return c
	}

	creds, sa, err := LoadCredentials(ctx, opts.CredentialsJSON, opts.CredentialsFile)
	if err != nil {
		c.credErr = err
		c.logger.Warn().Err(err).Msg("earth engine credentials unavailable")
		return c
	}
	c.account = sa
	c.tokens = creds.TokenSource
	if c.project == "" {
		c.project = creds.ProjectID
	}
	c.http = oauth2.NewClient(context.Background(), creds.TokenSource)
	c.logger.Info().Str("client_email", sa.ClientEmail).Str("project", c.project).Msg("earth engine credentials loaded")
	return c
}

// Project returns the Cloud project used for computations.
func (c *Client) Project() string { return c.project }

// Account returns the loaded service account, or nil.
func (c *Client) Account() *ServiceAccount { return c.account }

// CredentialError returns the error recorded while loading credentials.
func (c *Client) CredentialError() error { return c.credErr }

// ready reports the error that blocks remote calls, if any.
func (c *Client) ready() error {
	if c.credErr != nil {
		return c.credErr
	}
	if c.http == nil {
		return ErrNoCredentials
	}
	if c.project == "" {
		return ErrNoProject
	}
	return nil
}

// CheckToken fetches an access token to verify the credentials end to end.
func (c *Client) CheckToken(ctx context.Context) (time.Time, error) {
	if err := c.ready(); err != nil {
		return time.Time{}, err
	}
	if c.tokens == nil {
		// Test clients carry no token source.
		return time.Time{}, nil
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return time.Time{}, fmt.Errorf("fetching access token: %w", err)
	}
	return tok.Expiry, nil
}

func (c *Client) projectPath(suffix string) string {
	return fmt.Sprintf("%s/v1/projects/%s/%s", c.baseURL, url.PathEscape(c.project), suffix)
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	if err := c.ready(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("earth engine request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("earth engine call")

	if resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// ComputeValue evaluates v and returns the raw JSON result.
func (c *Client) ComputeValue(ctx context.Context, v Value) (json.RawMessage, error) {
	expr, err := Serialize(v)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.do(ctx, http.MethodPost, c.projectPath("value:compute"), map[string]any{"expression": expr}, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// MapID identifies a tile session created on the server.
type MapID struct {
	Name    string `json:"name"`
	TileURL string `json:"tileUrl"`
}

// CreateMap registers a visualized image for XYZ tile serving.
func (c *Client) CreateMap(ctx context.Context, img Image) (*MapID, error) {
	expr, err := Serialize(img)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Name string `json:"name"`
	}
	body := map[string]any{"expression": expr, "fileFormat": "PNG"}
	if err := c.do(ctx, http.MethodPost, c.projectPath("maps"), body, &resp); err != nil {
		return nil, err
	}
	return &MapID{
		Name:    resp.Name,
		TileURL: fmt.Sprintf("%s/v1/%s/tiles/{z}/{x}/{y}", c.baseURL, resp.Name),
	}, nil
}

// CreateThumbnail registers a thumbnail and returns its download URL. img should
// already be visualized and clipped/scaled.
func (c *Client) CreateThumbnail(ctx context.Context, img Image, format string) (string, error) {
	if format == "" {
		format = "PNG"
	}
	expr, err := Serialize(img)
	if err != nil {
		return "", err
	}
	var resp struct {
		Name string `json:"name"`
	}
	body := map[string]any{"expression": expr, "fileFormat": strings.ToUpper(format)}
	if err := c.do(ctx, http.MethodPost, c.projectPath("thumbnails"), body, &resp); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/v1/%s:getPixels", c.baseURL, resp.Name), nil
}

// Fetch downloads a URL previously returned by this client (thumbnails).
func (c *Client) Fetch(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("earth engine request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading pixels: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, data)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("pixel payload exceeds %d bytes", limit)
	}
	return data, nil
}

// Band describes one band of an asset.
type Band struct {
	ID       string         `json:"id"`
	DataType map[string]any `json:"dataType,omitempty"`
	Grid     map[string]any `json:"grid,omitempty"`
}

// Asset is the metadata of a catalog asset.
type Asset struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	ID          string         `json:"id"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	StartTime   string         `json:"startTime,omitempty"`
	EndTime     string         `json:"endTime,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Bands       []Band         `json:"bands,omitempty"`
}

// GetAsset fetches asset metadata. Public catalog ids are resolved under
// projects/earthengine-public.
func (c *Client) GetAsset(ctx context.Context, id string) (*Asset, error) {
	name := id
	if !strings.HasPrefix(id, "projects/") {
		name = fmt.Sprintf("projects/%s/assets/%s", PublicProject, id)
	}
	var asset Asset
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/v1/%s", c.baseURL, name), nil, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// ExportRequest describes an image export.
type ExportRequest struct {
	Image          Image
	Description    string
	Destination    string // drive or gcs
	Folder         string
	Bucket         string
	FileNamePrefix string
	MaxPixels      float64
}

// Operation is a long-running export task.
type Operation struct {
	Name     string         `json:"name"`
	Done     bool           `json:"done"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    *APIError      `json:"error,omitempty"`
}

// State returns metadata.state, e.g. PENDING, RUNNING, SUCCEEDED.
func (o *Operation) State() string {
	if s, ok := o.Metadata["state"].(string); ok {
		return s
	}
	if o.Done {
		return "SUCCEEDED"
	}
	return "UNKNOWN"
}

// ExportImage starts a GeoTIFF export to Drive or Cloud Storage.
func (c *Client) ExportImage(ctx context.Context, r ExportRequest) (*Operation, error) {
	expr, err := Serialize(r.Image)
	if err != nil {
		return nil, err
	}
	opts := map[string]any{"fileFormat": "GEO_TIFF"}
	switch r.Destination {
	case "gcs":
		if r.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for gcs exports")
		}
		opts["cloudStorageDestination"] = map[string]any{"bucket": r.Bucket, "filenamePrefix": r.FileNamePrefix}
	case "drive", "":
		opts["driveDestination"] = map[string]any{"folder": r.Folder, "filenamePrefix": r.FileNamePrefix}
	default:
		return nil, fmt.Errorf("unknown export destination %q", r.Destination)
	}
	maxPixels := r.MaxPixels
	if maxPixels <= 0 {
		maxPixels = 1e10
	}
	body := map[string]any{
		"expression":        expr,
		"description":       r.Description,
		"fileExportOptions": opts,
		"maxPixels":         fmt.Sprintf("%.0f", maxPixels),
	}
	var op Operation
	if err := c.do(ctx, http.MethodPost, c.projectPath("image:export"), body, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// GetOperation polls an export operation by its full name.
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	if !strings.HasPrefix(name, "projects/") {
		name = fmt.Sprintf("projects/%s/operations/%s", c.project, name)
	}
	var op Operation
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/v1/%s", c.baseURL, name), nil, &op); err != nil {
		return nil, err
	}
	return &op, nil
}
