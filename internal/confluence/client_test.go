package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	apperrors "github.com/getmentor/confluence-alert-action/pkg/errors"
	"github.com/getmentor/confluence-alert-action/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConfluence serves the two content endpoints used by the page updater
type fakeConfluence struct {
	mu sync.Mutex

	versions      []int // successive version numbers returned by GET
	getStatus     int
	putStatuses   []int // successive PUT statuses, 200 once exhausted
	getCalls      int
	putCalls      int
	lastPut       UpdatePageRequest
	lastAuth      string
	lastGetQuery  string
	getBody       string
	lastPutHeader http.Header
}

func (f *fakeConfluence) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastAuth = r.Header.Get("Authorization")
	if r.URL.Path != "/rest/api/content/123" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		f.getCalls++
		f.lastGetQuery = r.URL.RawQuery
		if f.getStatus != 0 {
			w.WriteHeader(f.getStatus)
			_, _ = w.Write([]byte(`{"message":"` + http.StatusText(f.getStatus) + `"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if f.getBody != "" {
			_, _ = w.Write([]byte(f.getBody))
			return
		}
		version := f.versions[0]
		if len(f.versions) > 1 {
			f.versions = f.versions[1:]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "123", "version": map[string]any{"number": version}})
	case http.MethodPut:
		f.putCalls++
		f.lastPutHeader = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &f.lastPut)
		status := http.StatusOK
		if len(f.putStatuses) > 0 {
			status = f.putStatuses[0]
			f.putStatuses = f.putStatuses[1:]
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"id":"123"}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newUpdate(baseURL string) PageUpdate {
	return PageUpdate{
		BaseURL:   baseURL,
		PageID:    "123",
		SpaceKey:  "OPS",
		PageTitle: "Alert results",
		User:      "u",
		Token:     "t",
		Body:      "<p>body</p>",
	}
}

func TestClient_UpdatePage_IncrementsVersion(t *testing.T) {
	for _, current := range []int{1, 7, 41, 1000} {
		fake := &fakeConfluence{versions: []int{current}}
		server := httptest.NewServer(fake)

		client := NewClient(httpclient.NewStandardClient(time.Second), 0)
		newVersion, err := client.UpdatePage(context.Background(), newUpdate(server.URL))
		server.Close()

		require.NoError(t, err)
		assert.Equal(t, current+1, newVersion)
		assert.Equal(t, current+1, fake.lastPut.Version.Number)
		assert.Equal(t, 1, fake.getCalls)
		assert.Equal(t, 1, fake.putCalls)
	}
}

func TestClient_UpdatePage_WritePayload(t *testing.T) {
	fake := &fakeConfluence{versions: []int{7}}
	server := httptest.NewServer(fake)
	defer server.Close()

	client := NewClient(httpclient.NewStandardClient(time.Second), 0)
	_, err := client.UpdatePage(context.Background(), newUpdate(server.URL))
	require.NoError(t, err)

	assert.Equal(t, "expand=version", fake.lastGetQuery)
	assert.Equal(t, httpclient.BasicAuth("u", "t"), fake.lastAuth)
	assert.Equal(t, "application/json", fake.lastPutHeader.Get("Content-Type"))
	assert.Equal(t, UpdatePageRequest{
		ID:      "123",
		Type:    "page",
		Title:   "Alert results",
		Space:   Space{Key: "OPS"},
		Body:    BodyWrapper{Storage: Storage{Value: "<p>body</p>", Representation: "storage"}},
		Version: Version{Number: 8},
	}, fake.lastPut)
}

func TestClient_UpdatePage_VersionFetchFailureAbortsBeforeWrite(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusUnauthorized} {
		fake := &fakeConfluence{getStatus: status}
		server := httptest.NewServer(fake)

		client := NewClient(httpclient.NewStandardClient(time.Second), 3)
		_, err := client.UpdatePage(context.Background(), newUpdate(server.URL))
		server.Close()

		require.Error(t, err)
		var reqErr *apperrors.RequestError
		require.True(t, errors.As(err, &reqErr))
		assert.Equal(t, status, reqErr.StatusCode)
		assert.Equal(t, 1, fake.getCalls)
		assert.Equal(t, 0, fake.putCalls)
	}
}

func TestClient_UpdatePage_MalformedVersionResponse(t *testing.T) {
	fake := &fakeConfluence{getBody: `{"id":"123"}`}
	server := httptest.NewServer(fake)
	defer server.Close()

	client := NewClient(httpclient.NewStandardClient(time.Second), 0)
	_, err := client.UpdatePage(context.Background(), newUpdate(server.URL))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed version response")
	assert.True(t, errors.Is(err, apperrors.ErrRequest))
	assert.Equal(t, 0, fake.putCalls)
}

func TestClient_UpdatePage_ConflictFailsFastByDefault(t *testing.T) {
	fake := &fakeConfluence{versions: []int{7}, putStatuses: []int{http.StatusConflict}}
	server := httptest.NewServer(fake)
	defer server.Close()

	client := NewClient(httpclient.NewStandardClient(time.Second), 0)
	_, err := client.UpdatePage(context.Background(), newUpdate(server.URL))

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, 1, fake.getCalls)
	assert.Equal(t, 1, fake.putCalls)
}

func TestClient_UpdatePage_ConflictRetryRereadsVersion(t *testing.T) {
	fake := &fakeConfluence{versions: []int{7, 8}, putStatuses: []int{http.StatusConflict}}
	server := httptest.NewServer(fake)
	defer server.Close()

	client := NewClient(httpclient.NewStandardClient(time.Second), 2)
	newVersion, err := client.UpdatePage(context.Background(), newUpdate(server.URL))

	require.NoError(t, err)
	assert.Equal(t, 9, newVersion)
	assert.Equal(t, 9, fake.lastPut.Version.Number)
	assert.Equal(t, 2, fake.getCalls)
	assert.Equal(t, 2, fake.putCalls)
}

func TestClient_UpdatePage_ConflictRetriesExhausted(t *testing.T) {
	fake := &fakeConfluence{versions: []int{7, 8}, putStatuses: []int{http.StatusConflict, http.StatusConflict}}
	server := httptest.NewServer(fake)
	defer server.Close()

	client := NewClient(httpclient.NewStandardClient(time.Second), 1)
	_, err := client.UpdatePage(context.Background(), newUpdate(server.URL))

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, apperrors.ExitRequest, apperrors.ExitCode(err))
	assert.Contains(t, err.Error(), "changed concurrently on each of 2 writes, last rejected version 9")
	assert.Equal(t, 2, fake.getCalls)
	assert.Equal(t, 2, fake.putCalls)
}

func TestClient_UpdatePage_NonConflictWriteErrorIsNotRetried(t *testing.T) {
	fake := &fakeConfluence{versions: []int{7}, putStatuses: []int{http.StatusBadRequest}}
	server := httptest.NewServer(fake)
	defer server.Close()

	client := NewClient(httpclient.NewStandardClient(time.Second), 2)
	_, err := client.UpdatePage(context.Background(), newUpdate(server.URL))

	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, 1, fake.putCalls)
}

func TestNewUpdatePageRequest_JSONShape(t *testing.T) {
	data, err := json.Marshal(NewUpdatePageRequest(newUpdate("https://x"), 8))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"id": "123",
		"type": "page",
		"title": "Alert results",
		"space": {"key": "OPS"},
		"body": {"storage": {"value": "<p>body</p>", "representation": "storage"}},
		"version": {"number": 8}
	}`, string(data))
}
