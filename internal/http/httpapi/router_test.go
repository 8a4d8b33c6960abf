package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomoima525/daily-diary/internal/dispatch"
	"github.com/tomoima525/daily-diary/internal/domain"
	"github.com/tomoima525/daily-diary/internal/http/handlers"
	"github.com/tomoima525/daily-diary/internal/infra"
	"github.com/tomoima525/daily-diary/internal/publish"
	"github.com/tomoima525/daily-diary/internal/storage"
)

type recordingInvoker struct {
	mu   sync.Mutex
	jobs []domain.Job
	err  error
}

func (r *recordingInvoker) Invoke(ctx context.Context, job domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

type apiHarness struct {
	handler http.Handler
	store   *storage.FileStore
	invoker *recordingInvoker
}

func newAPI(t *testing.T) *apiHarness {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), "http://api.test", storage.NewSigner("test-secret"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	inv := &recordingInvoker{}
	logger := infra.NopLogger()
	app := &handlers.App{
		Submitter: dispatch.NewDispatcher(inv, logger),
		Oracle:    publish.NewOracle(store, time.Hour),
		Files:     store,
		Logger:    logger,
		Component: "api",
	}
	return &apiHarness{
		handler: NewRouter(app, Options{CORSOrigins: []string{"*"}, Logger: logger}),
		store:   store,
		invoker: inv,
	}
}

func (h *apiHarness) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

const validSubmission = `{"photo_memories":[
	{"photo_name":"image_0","photo_url":"photos/a.jpg","feelings":"first day at the beach"},
	{"photo_name":"image_1","photo_url":"photos/b.jpg","feelings":"sunset with friends"}
]}`

func TestSubmitPollAndFetchURL(t *testing.T) {
	h := newAPI(t)

	rec := h.do(t, http.MethodPost, "/video", validSubmission, map[string]string{"Accept-Language": "ja-JP"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	jobID, _ := resp["requestId"].(string)
	if _, err := uuid.Parse(jobID); err != nil {
		t.Fatalf("requestId %q is not a uuid", jobID)
	}
	if resp["status"] != "processing" {
		t.Fatalf("status = %v", resp["status"])
	}
	if len(h.invoker.jobs) != 1 {
		t.Fatalf("invocations = %d, want 1", len(h.invoker.jobs))
	}
	job := h.invoker.jobs[0]
	if job.Locale != "ja-JP" || len(job.Memories) != 2 || job.Memories[1].Name != "image_1" {
		t.Fatalf("dispatched job = %+v", job)
	}

	rec = h.do(t, http.MethodGet, "/video/"+jobID, "", nil)
	if rec.Code != http.StatusOK || decode(t, rec)["isReady"] != false {
		t.Fatalf("status before publish = %d %s", rec.Code, rec.Body.String())
	}
	rec = h.do(t, http.MethodGet, "/video/"+jobID+"/url", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("url before publish = %d", rec.Code)
	}

	if _, err := h.store.Put(context.Background(), domain.OutputKey(jobID), strings.NewReader("mp4"), storage.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec = h.do(t, http.MethodGet, "/video/"+jobID, "", nil)
	status := decode(t, rec)
	if status["isReady"] != true || status["videoKey"] != domain.OutputKey(jobID) {
		t.Fatalf("status after publish = %v", status)
	}

	rec = h.do(t, http.MethodGet, "/video/"+jobID+"/url", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("url status = %d body=%s", rec.Code, rec.Body.String())
	}
	loc := decode(t, rec)
	raw, _ := loc["url"].(string)
	u, err := url.Parse(raw)
	if err != nil || u.Query().Get("token") == "" {
		t.Fatalf("url = %q", raw)
	}

	rec = h.do(t, http.MethodGet, u.RequestURI(), "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "mp4" {
		t.Fatalf("download = %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestSubmitBodyLocaleWinsOverHeader(t *testing.T) {
	h := newAPI(t)
	body := `{"locale":"fr","photo_memories":[{"photo_name":"a","photo_url":"x.jpg","feelings":"joy"}]}`
	rec := h.do(t, http.MethodPost, "/video", body, map[string]string{"Accept-Language": "de"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := h.invoker.jobs[0].Locale; got != "fr" {
		t.Fatalf("locale = %q, want fr", got)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantError string
	}{
		{name: "empty body", body: "", wantCode: http.StatusBadRequest, wantError: "request body is required"},
		{name: "malformed json", body: "{", wantCode: http.StatusBadRequest, wantError: "invalid JSON body"},
		{name: "missing list", body: `{}`, wantCode: http.StatusBadRequest, wantError: "photo_memories is required"},
		{name: "empty list", body: `{"photo_memories":[]}`, wantCode: http.StatusBadRequest, wantError: "at least one photo memory is required"},
		{name: "missing feeling", body: `{"photo_memories":[{"photo_name":"a","photo_url":"x.jpg"}]}`, wantCode: http.StatusBadRequest, wantError: "feelings is required"},
		{name: "duplicate names", body: `{"photo_memories":[
			{"photo_name":"a","photo_url":"x.jpg","feelings":"f"},
			{"photo_name":"a","photo_url":"y.jpg","feelings":"g"}]}`, wantCode: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newAPI(t)
			rec := h.do(t, http.MethodPost, "/video", tc.body, nil)
			if rec.Code != tc.wantCode {
				t.Fatalf("status = %d, want %d body=%s", rec.Code, tc.wantCode, rec.Body.String())
			}
			if tc.wantError != "" {
				if got := decode(t, rec)["error"]; got != tc.wantError {
					t.Fatalf("error = %v, want %q", got, tc.wantError)
				}
			}
			if len(h.invoker.jobs) != 0 {
				t.Fatalf("invalid submission was dispatched")
			}
		})
	}
}

func TestSubmitInvokeFailureIs500(t *testing.T) {
	h := newAPI(t)
	h.invoker.err = errors.New("queue unavailable")
	rec := h.do(t, http.MethodPost, "/video", validSubmission, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if decode(t, rec)["error"] != "internal server error" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestRoutingEdges(t *testing.T) {
	h := newAPI(t)

	rec := h.do(t, http.MethodOptions, "/video", "", map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": "POST",
	})
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("preflight = %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("missing CORS origin header")
	}

	rec = h.do(t, http.MethodDelete, "/video/"+uuid.NewString(), "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("DELETE status = %d", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/video/not-a-uuid", "", nil)
	if rec.Code != http.StatusBadRequest || decode(t, rec)["error"] != "invalid request id format" {
		t.Fatalf("bad id = %d %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/nowhere", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route = %d", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if body := decode(t, rec); body["status"] != "ok" || body["component"] != "api" {
		t.Fatalf("healthz body = %v", body)
	}
}

func TestDownloadRequiresMatchingToken(t *testing.T) {
	h := newAPI(t)
	ctx := context.Background()
	for _, key := range []string{"videos/vid_a.mp4", "videos/vid_b.mp4"} {
		if _, err := h.store.Put(ctx, key, strings.NewReader(key), storage.PutOptions{}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	token := url.QueryEscape(h.store.Signer().Sign("videos/vid_a.mp4", time.Now().Add(time.Minute)))
	expired := url.QueryEscape(h.store.Signer().Sign("videos/vid_a.mp4", time.Now().Add(-time.Minute)))

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{name: "valid", target: "/files/videos/vid_a.mp4?token=" + token, want: http.StatusOK},
		{name: "no token", target: "/files/videos/vid_a.mp4", want: http.StatusForbidden},
		{name: "token for other key", target: "/files/videos/vid_b.mp4?token=" + token, want: http.StatusForbidden},
		{name: "expired", target: "/files/videos/vid_a.mp4?token=" + expired, want: http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := h.do(t, http.MethodGet, tc.target, "", nil); rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestSubmitRateLimited(t *testing.T) {
	logger := infra.NopLogger()
	app := &handlers.App{Submitter: dispatch.NewDispatcher(&recordingInvoker{}, logger), Logger: logger}
	handler := NewRouter(app, Options{SubmitRateLimit: 1, Logger: logger})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/video", strings.NewReader(validSubmission))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusAccepted || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestWorkerAcceptJob(t *testing.T) {
	job, err := domain.NewJob([]domain.PhotoMemory{{Name: "a", SourceLocator: "x.jpg", Feeling: "joy"}}, time.Now())
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	payload, _ := json.Marshal(job)

	tests := []struct {
		name    string
		body    string
		invoker dispatch.Invoker
		want    int
	}{
		{name: "accepted", body: string(payload), invoker: &recordingInvoker{}, want: http.StatusAccepted},
		{name: "bad json", body: "{", invoker: &recordingInvoker{}, want: http.StatusBadRequest},
		{name: "invalid job", body: `{"requestId":"nope","photo_memories":[]}`, invoker: &recordingInvoker{}, want: http.StatusBadRequest},
		{name: "shutting down", body: string(payload), invoker: &recordingInvoker{err: dispatch.ErrClosed}, want: http.StatusServiceUnavailable},
		{name: "invoke error", body: string(payload), invoker: &recordingInvoker{err: errors.New("boom")}, want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := &handlers.App{Jobs: tc.invoker, Logger: infra.NopLogger()}
			req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			NewWorkerRouter(app, infra.NopLogger()).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d body=%s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestWorkerAcceptJobCanonicalizesID(t *testing.T) {
	job, err := domain.NewJob([]domain.PhotoMemory{{Name: "a", SourceLocator: "x.jpg", Feeling: "joy"}}, time.Now())
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	sent := job
	sent.ID = " " + strings.ToUpper(job.ID) + " "
	payload, _ := json.Marshal(sent)

	inv := &recordingInvoker{}
	app := &handlers.App{Jobs: inv, Logger: infra.NopLogger(), Component: "worker"}
	router := NewWorkerRouter(app, infra.NopLogger())

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(string(payload)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if len(inv.jobs) != 1 || inv.jobs[0].ID != job.ID {
		t.Fatalf("invoked with %+v, want id %s", inv.jobs, job.ID)
	}
	if got := decode(t, rec)["requestId"]; got != job.ID {
		t.Fatalf("requestId = %v, want %s", got, job.ID)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if body := decode(t, rec); body["component"] != "worker" {
		t.Fatalf("healthz body = %v", body)
	}
}
