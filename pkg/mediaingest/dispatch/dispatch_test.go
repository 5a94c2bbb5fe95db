package dispatch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-ingest/pkg/mediaingest"
	"github.com/tendant/media-ingest/pkg/mediaingest/dispatch"
)

var testJob = dispatch.JobRef{Project: "media-prod", Region: "us-central1", JobName: "encode-video"}

func TestRunSendsOverrides(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]string{
			"name": "projects/media-prod/locations/us-central1/operations/op-123",
		})
	}))
	defer srv.Close()

	c, err := dispatch.New(testJob, dispatch.StaticTokenSource("tok-1"), dispatch.WithEndpoint(srv.URL))
	require.NoError(t, err)

	op, err := c.Run(context.Background(), mediaingest.RunInput{
		RawBucket:    "raw-bucket",
		RawObject:    "raw/u1/a1/clip.mp4",
		OutputBucket: "processed-bucket",
	})
	require.NoError(t, err)
	assert.Equal(t, "projects/media-prod/locations/us-central1/operations/op-123", op)
	assert.Equal(t, "/v2/projects/media-prod/locations/us-central1/jobs/encode-video:run", gotPath)
	assert.Equal(t, "Bearer tok-1", gotAuth)

	overrides := gotBody["overrides"].(map[string]any)
	containers := overrides["containerOverrides"].([]any)
	require.Len(t, containers, 1)
	env := containers[0].(map[string]any)["env"].([]any)
	byName := map[string]string{}
	for _, e := range env {
		kv := e.(map[string]any)
		byName[kv["name"].(string)] = kv["value"].(string)
	}
	assert.Equal(t, map[string]string{
		"RAW_OBJECT":  "raw/u1/a1/clip.mp4",
		"RAW_BUCKET":  "raw-bucket",
		"PROC_BUCKET": "processed-bucket",
	}, byName)
}

func TestRunControlPlaneError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := dispatch.New(testJob, dispatch.StaticTokenSource("tok"), dispatch.WithEndpoint(srv.URL))
	require.NoError(t, err)

	_, err = c.Run(context.Background(), mediaingest.RunInput{
		RawBucket: "raw-bucket",
		RawObject: "raw/u1/a1/clip.mp4",
	})
	require.Error(t, err)
	var de *mediaingest.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Error(), "429")
	assert.Contains(t, de.Job, "encode-video")
}

func TestRunRejectsIncompleteInput(t *testing.T) {
	c, err := dispatch.New(testJob, dispatch.StaticTokenSource("tok"))
	require.NoError(t, err)

	_, err = c.Run(context.Background(), mediaingest.RunInput{RawBucket: "raw-bucket"})
	var de *mediaingest.DispatchError
	require.ErrorAs(t, err, &de)
}

func TestNewValidatesJobRef(t *testing.T) {
	_, err := dispatch.New(dispatch.JobRef{Project: "p"}, dispatch.StaticTokenSource("tok"))
	assert.Error(t, err)

	_, err = dispatch.New(testJob, nil)
	assert.Error(t, err)
}

func TestMetadataTokenSourceCaches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "Google", r.Header.Get("Metadata-Flavor"))
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-cached", "expires_in": 3600})
	}))
	defer srv.Close()

	ts := dispatch.NewMetadataTokenSource(srv.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := ts.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "tok-cached", tok)
	}
	assert.Equal(t, 1, calls, "token should come from cache until expiry")
}

func TestMetadataTokenSourceRefreshesNearExpiry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Expires inside the refresh skew, so every call refetches.
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 30})
	}))
	defer srv.Close()

	ts := dispatch.NewMetadataTokenSource(srv.URL)
	ctx := context.Background()

	_, err := ts.Token(ctx)
	require.NoError(t, err)
	_, err = ts.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestMetadataTokenSourceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	ts := dispatch.NewMetadataTokenSource(srv.URL)
	_, err := ts.Token(context.Background())
	assert.Error(t, err)
}

func TestRecorder(t *testing.T) {
	rec := &dispatch.Recorder{}
	op, err := rec.Run(context.Background(), mediaingest.RunInput{RawBucket: "b", RawObject: "o"})
	require.NoError(t, err)
	assert.Equal(t, "recorded-1", op)
	require.Len(t, rec.Runs(), 1)

	rec.Err = context.DeadlineExceeded
	_, err = rec.Run(context.Background(), mediaingest.RunInput{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Outlasts the client deadline so the request aborts first.
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c, err := dispatch.New(testJob, dispatch.StaticTokenSource("tok"), dispatch.WithEndpoint(srv.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Run(ctx, mediaingest.RunInput{RawBucket: "b", RawObject: "o"})
	var de *mediaingest.DispatchError
	require.ErrorAs(t, err, &de)
}
