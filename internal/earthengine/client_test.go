package earthengine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(context.Background(), Options{
		BaseURL:    srv.URL,
		ProjectID:  "test-project",
		Timeout:    5 * time.Second,
		Logger:     zerolog.Nop(),
		HTTPClient: srv.Client(),
	})
	return c, srv
}

func TestComputeValue(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"result": 42}`)
	})

	got, err := c.ComputeValue(context.Background(), LoadImageCollection("X").Size())
	require.NoError(t, err)
	assert.JSONEq(t, `42`, string(got))
	assert.Equal(t, "/v1/projects/test-project/value:compute", gotPath)
	assert.Contains(t, gotBody, "expression")
}

func TestCreateMapTileURL(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/test-project/maps", r.URL.Path)
		io.WriteString(w, `{"name":"projects/test-project/maps/abc123"}`)
	})

	m, err := c.CreateMap(context.Background(), ConstantImage(1))
	require.NoError(t, err)
	assert.Equal(t, "projects/test-project/maps/abc123", m.Name)
	assert.Equal(t, srv.URL+"/v1/projects/test-project/maps/abc123/tiles/{z}/{x}/{y}", m.TileURL)
}

func TestCreateThumbnailURL(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "JPEG", body["fileFormat"])
		io.WriteString(w, `{"name":"projects/test-project/thumbnails/t1"}`)
	})

	u, err := c.CreateThumbnail(context.Background(), ConstantImage(1), "jpeg")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/v1/projects/test-project/thumbnails/t1:getPixels", u)
}

func TestAPIErrorPassthrough(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"Image.load: Image asset 'nope' not found."}}`)
	})

	_, err := c.ComputeValue(context.Background(), LoadImage("nope"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	assert.Equal(t, "INVALID_ARGUMENT", apiErr.Status)
	assert.Equal(t, "Image.load: Image asset 'nope' not found.", apiErr.Message)
	assert.False(t, apiErr.IsAuth())
}

func TestAPIErrorRawBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, strings.Repeat("x", 600))
	})

	_, err := c.GetAsset(context.Background(), "COPERNICUS/S2")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsAuth())
	assert.Len(t, apiErr.Message, 512)
}

func TestGetAssetResolvesPublicPath(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/earthengine-public/assets/USGS/SRTMGL1_003", r.URL.Path)
		io.WriteString(w, `{"type":"IMAGE","id":"USGS/SRTMGL1_003","bands":[{"id":"elevation"}]}`)
	})

	a, err := c.GetAsset(context.Background(), "USGS/SRTMGL1_003")
	require.NoError(t, err)
	assert.Equal(t, "IMAGE", a.Type)
	require.Len(t, a.Bands, 1)
	assert.Equal(t, "elevation", a.Bands[0].ID)
}

func TestExportAndStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/projects/test-project/image:export":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			opts := body["fileExportOptions"].(map[string]any)
			assert.Contains(t, opts, "cloudStorageDestination")
			io.WriteString(w, `{"name":"projects/test-project/operations/OP1","metadata":{"state":"PENDING"}}`)
		case "/v1/projects/test-project/operations/OP1":
			io.WriteString(w, `{"name":"projects/test-project/operations/OP1","done":true,"metadata":{"state":"SUCCEEDED"}}`)
		default:
			http.NotFound(w, r)
		}
	})

	op, err := c.ExportImage(context.Background(), ExportRequest{
		Image:       ConstantImage(1),
		Description: "test",
		Destination: "gcs",
		Bucket:      "b",
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", op.State())

	op, err = c.GetOperation(context.Background(), "OP1")
	require.NoError(t, err)
	assert.True(t, op.Done)
	assert.Equal(t, "SUCCEEDED", op.State())
}

func TestExportValidation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.ExportImage(context.Background(), ExportRequest{Image: ConstantImage(1), Destination: "gcs"})
	assert.Error(t, err)
	_, err = c.ExportImage(context.Background(), ExportRequest{Image: ConstantImage(1), Destination: "s3"})
	assert.Error(t, err)
}

func TestFetchLimit(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("p", 100))
	})

	data, err := c.Fetch(context.Background(), c.baseURL+"/pixels", 100)
	require.NoError(t, err)
	assert.Len(t, data, 100)

	_, err = c.Fetch(context.Background(), c.baseURL+"/pixels", 99)
	assert.Error(t, err)
}

func TestNoCredentialsFailsEveryCall(t *testing.T) {
	c := NewClient(context.Background(), Options{ProjectID: "p", Logger: zerolog.Nop()})
	assert.ErrorIs(t, c.CredentialError(), ErrNoCredentials)

	_, err := c.ComputeValue(context.Background(), ConstantImage(1))
	assert.ErrorIs(t, err, ErrNoCredentials)
	_, err = c.CreateMap(context.Background(), ConstantImage(1))
	assert.ErrorIs(t, err, ErrNoCredentials)
	_, err = c.CheckToken(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestInvalidCredentialBlob(t *testing.T) {
	c := NewClient(context.Background(), Options{CredentialsJSON: `{"type":"authorized_user"}`, Logger: zerolog.Nop()})
	require.Error(t, c.CredentialError())
	_, err := c.ComputeValue(context.Background(), ConstantImage(1))
	assert.Equal(t, c.CredentialError(), err)
}

func TestMissingProject(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	c := NewClient(context.Background(), Options{BaseURL: srv.URL, Logger: zerolog.Nop(), HTTPClient: srv.Client()})
	_, err := c.ComputeValue(context.Background(), ConstantImage(1))
	assert.ErrorIs(t, err, ErrNoProject)
}
