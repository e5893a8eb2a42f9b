package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectBlock(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"cloudflare 403", 403, http.Header{"Cf-Ray": {"abc123"}}, "", BlockCloudflare},
		{"cloudflare 503 server", 503, http.Header{"Server": {"cloudflare"}}, "", BlockCloudflare},
		{"challenge body", 200, nil, "<p>Checking your browser before accessing</p>", BlockCloudflare},
		{"captcha", 200, http.Header{}, "Please complete the reCAPTCHA to continue", BlockCaptcha},
		{"too many requests", 429, nil, "", BlockIP},
		{"access denied", 403, nil, "<h1>Access Denied</h1>", BlockIP},
		{"js shell", 200, nil, "<html><noscript>Enable JavaScript to continue</noscript></html>", BlockJSShell},
		{"clean", 200, http.Header{}, "<html><body><table><tr><th>Horsepower</th><td>203 hp</td></tr></table></body></html>", BlockNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, bt := DetectBlock(tt.status, tt.header, []byte(tt.body))
			assert.Equal(t, tt.want != BlockNone, blocked)
			assert.Equal(t, tt.want, bt)
		})
	}
	assert.True(t, BlockCloudflare.Captcha())
	assert.False(t, BlockIP.Captcha())
}

func TestHTTPEngine_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, chromeUA, r.Header.Get("User-Agent"))
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, "<html><head><title> 2024 Toyota Camry </title></head><body><p>Sedan</p></body></html>")
		case "/captcha":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><body>solve this captcha</body></html>")
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{}`)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	eng := NewHTTPEngine("")
	ctx := context.Background()

	res, err := eng.Fetch(ctx, &FetchRequest{URL: srv.URL + "/ok", Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "2024 Toyota Camry", res.Title)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "http", res.EngineName)
	assert.Contains(t, res.HTML, "Sedan")

	_, err = eng.Fetch(ctx, &FetchRequest{URL: srv.URL + "/captcha"})
	be, ok := AsBlocked(err)
	require.True(t, ok)
	assert.Equal(t, BlockCaptcha, be.Block)

	_, err = eng.Fetch(ctx, &FetchRequest{URL: srv.URL + "/json"})
	require.Error(t, err)
	assert.False(t, IsTransient(err))

	_, err = eng.Fetch(ctx, &FetchRequest{URL: srv.URL + "/down"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

type stubEngine struct {
	name  string
	err   error
	calls int
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Fetch(_ context.Context, req *FetchRequest) (*FetchResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &FetchResult{HTML: "<html></html>", FinalURL: req.URL, EngineName: s.name}, nil
}

func TestEscalator_EscalatesPastBlock(t *testing.T) {
	httpTier := &stubEngine{name: "http", err: &BlockedError{Engine: "http", Block: BlockCaptcha}}
	browserTier := &stubEngine{name: "browser"}
	mem := NewDomainMemory(time.Hour)
	defer mem.Stop()

	x := NewEscalator([]Engine{httpTier, browserTier}, mem)
	res, err := x.Fetch(context.Background(), &FetchRequest{URL: "https://cars.example.com/camry"})
	require.NoError(t, err)
	assert.Equal(t, "browser", res.EngineName)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, BlockCaptcha, res.Attempts[0].Block)
	assert.NoError(t, res.Attempts[1].Err)
	assert.Equal(t, "browser", mem.Get("cars.example.com"))

	// The remembered tier is tried first next time.
	res, err = x.Fetch(context.Background(), &FetchRequest{URL: "https://cars.example.com/rav4"})
	require.NoError(t, err)
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, 1, httpTier.calls)
	assert.Equal(t, 2, browserTier.calls)
}

func TestEscalator_AllFail(t *testing.T) {
	x := NewEscalator([]Engine{
		&stubEngine{name: "http", err: errors.New("dial failed")},
		&stubEngine{name: "browser", err: &BlockedError{Engine: "browser", Block: BlockIP}},
	}, nil)

	_, err := x.Fetch(context.Background(), &FetchRequest{URL: "https://cars.example.com/x"})
	require.Error(t, err)

	var ee *EscalationError
	require.ErrorAs(t, err, &ee)
	assert.Len(t, ee.Attempts, 2)

	be, ok := AsBlocked(err)
	require.True(t, ok)
	assert.Equal(t, BlockIP, be.Block)
}

func TestEscalator_StopsOnCancel(t *testing.T) {
	first := &stubEngine{name: "http"}
	x := NewEscalator([]Engine{first}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := x.Fetch(ctx, &FetchRequest{URL: "https://cars.example.com/x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, first.calls)
}

func TestEscalator_NoEngines(t *testing.T) {
	_, err := NewEscalator(nil, nil).Fetch(context.Background(), &FetchRequest{URL: "https://a.example"})
	assert.Error(t, err)
}

func TestDomainMemory_Expiry(t *testing.T) {
	mem := NewDomainMemory(time.Minute)
	defer mem.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mem.now = func() time.Time { return now }

	mem.Set("cars.example.com", "browser")
	assert.Equal(t, "browser", mem.Get("cars.example.com"))

	now = now.Add(2 * time.Minute)
	assert.Empty(t, mem.Get("cars.example.com"))
	mem.Stop()
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(&TransientError{Err: errors.New("502")}))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", errors.New("read: connection reset by peer"))))
	assert.False(t, IsTransient(errors.New("404 not found")))
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Specs", extractTitle("<html><head><title>Specs</title></head></html>"))
	assert.Empty(t, extractTitle("<html><body>no title</body></html>"))
}
