package restclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/util"
)

func TestDoJSONSendsBearerAndRequestID(t *testing.T) {
	var gotAuth, gotRequestID, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-Id")
		gotContentType = r.Header.Get("Content-Type")
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"echo": body["email"]})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/", Tokens: StaticToken("tok-1")})
	ctx := util.ContextWithRequestID(context.Background(), "req-7")
	var out struct {
		Echo string `json:"echo"`
	}
	if err := c.DoJSON(ctx, http.MethodPost, "/auth/login", map[string]string{"email": "a@b.c"}, &out); err != nil {
		t.Fatalf("do json: %v", err)
	}
	if out.Echo != "a@b.c" {
		t.Fatalf("echo = %q", out.Echo)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotRequestID != "req-7" {
		t.Fatalf("request id = %q", gotRequestID)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type = %q", gotContentType)
	}
}

func TestWithBearerOverridesTokenSource(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Tokens: StaticToken("store-token")})
	if err := c.DoJSON(WithBearer(context.Background(), "explicit"), http.MethodGet, "/auth/check", nil, nil); err != nil {
		t.Fatalf("do json: %v", err)
	}
	if gotAuth != "Bearer explicit" {
		t.Fatalf("authorization = %q", gotAuth)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/unauthorized":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"invalid token"}`))
		case "/conflict":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"already in cart","code":"DUPLICATE"}`))
		case "/garbage":
			_, _ = w.Write([]byte(`<html>`))
		case "/empty":
		}
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL})
	ctx := context.Background()
	var out map[string]any

	err := c.DoJSON(ctx, http.MethodGet, "/unauthorized", nil, &out)
	if !errors.Is(err, ErrAuthRejected) || Classify(err) != KindAuthRejected {
		t.Fatalf("401 should be auth rejected, got %v (%s)", err, Classify(err))
	}

	err = c.DoJSON(ctx, http.MethodGet, "/conflict", nil, &out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || apiErr.Code != "DUPLICATE" || apiErr.Message != "already in cart" {
		t.Fatalf("unexpected api error: %#v", err)
	}
	if Classify(err) != KindBackend {
		t.Fatalf("409 kind = %s", Classify(err))
	}

	err = c.DoJSON(ctx, http.MethodGet, "/garbage", nil, &out)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("garbage body should be malformed, got %v", err)
	}
	err = c.DoJSON(ctx, http.MethodGet, "/empty", nil, &out)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("empty body should be malformed, got %v", err)
	}
}

func TestNetworkFailureAndTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	err := c.DoJSON(context.Background(), http.MethodGet, "/slow", nil, nil)
	if !errors.Is(err, ErrNetwork) || Classify(err) != KindNetwork {
		t.Fatalf("timeout should be a network failure, got %v", err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()
	c = New(Config{BaseURL: url})
	if err := c.DoJSON(context.Background(), http.MethodGet, "/", nil, nil); !errors.Is(err, ErrNetwork) {
		t.Fatalf("refused connection should be a network failure, got %v", err)
	}
}

func TestHooksObserveEveryCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Client") != "storefront" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	c.OnRequest(func(r *http.Request) { r.Header.Set("X-Client", "storefront") })
	var statuses []int
	c.OnResponse(func(_ *http.Request, resp *http.Response, err error) {
		if err == nil {
			statuses = append(statuses, resp.StatusCode)
		}
	})
	_ = c.DoJSON(context.Background(), http.MethodGet, "/cart", nil, nil)
	if len(statuses) != 1 || statuses[0] != http.StatusUnauthorized {
		t.Fatalf("statuses = %v", statuses)
	}
}

func TestDoMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("image")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":     r.FormValue("name"),
			"filename": hdr.Filename,
			"size":     len(data),
			"type":     hdr.Header.Get("Content-Type"),
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	var out struct {
		Name     string `json:"name"`
		Filename string `json:"filename"`
		Size     int    `json:"size"`
		Type     string `json:"type"`
	}
	err := c.DoMultipart(context.Background(), http.MethodPost, "/admin/product/create",
		map[string]string{"name": "Bag"},
		&File{Field: "image", Name: "bag.png", ContentType: "image/png", Data: []byte("png-bytes")},
		&out)
	if err != nil {
		t.Fatalf("multipart: %v", err)
	}
	if out.Name != "Bag" || out.Filename != "bag.png" || out.Size != len("png-bytes") || out.Type != "image/png" {
		t.Fatalf("unexpected echo: %+v", out)
	}
}

func TestDownload(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("webp"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	blob, err := c.Download(context.Background(), "/products/image/p1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(blob.Data) != "webp" || blob.ContentType != "image/webp" {
		t.Fatalf("unexpected blob: %+v", blob)
	}
	_, err = c.Download(context.Background(), "/products/image/missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 api error, got %v", err)
	}
}

func TestEnvelopeAcceptsBothShapes(t *testing.T) {
	type admin struct {
		ID string `json:"_id"`
	}
	for _, body := range []string{
		`{"admin":{"_id":"a1"}}`,
		`{"data":{"admin":{"_id":"a1"}}}`,
	} {
		var env Envelope
		if err := json.Unmarshal([]byte(body), &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		var got admin
		if err := env.Decode(&got, "admin"); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
		if got.ID != "a1" {
			t.Fatalf("id = %q for %s", got.ID, body)
		}
	}

	var env Envelope
	_ = json.Unmarshal([]byte(`{"success":false,"message":"Product already in cart."}`), &env)
	if err := env.Decode(&struct{}{}, "admin"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("missing field should be malformed, got %v", err)
	}
	err := env.Failure()
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Product already in cart." {
		t.Fatalf("unexpected failure: %v", err)
	}
}

func TestValidationError(t *testing.T) {
	err := Invalid("price", "is required")
	if !errors.Is(err, ErrValidation) || Classify(err) != KindValidation {
		t.Fatalf("validation error not classified: %v", err)
	}
	if err.Error() != "price: is required" {
		t.Fatalf("message = %q", err.Error())
	}
	if Classify(nil) != KindNone || Classify(errors.New("x")) != KindUnknown {
		t.Fatalf("unexpected classification for nil/unknown")
	}
}

func TestDecodeList(t *testing.T) {
	type item struct {
		ID string `json:"_id"`
	}
	for _, body := range []string{
		`[{"_id":"p1"},{"_id":"p2"}]`,
		`{"products":[{"_id":"p1"},{"_id":"p2"}]}`,
		`{"success":true,"data":[{"_id":"p1"},{"_id":"p2"}]}`,
	} {
		var items []item
		if err := DecodeList(json.RawMessage(body), &items, "products", "data"); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
		if len(items) != 2 || items[1].ID != "p2" {
			t.Fatalf("items = %+v for %s", items, body)
		}
	}
	var items []item
	if err := DecodeList(json.RawMessage(`"nope"`), &items, "products"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected malformed, got %v", err)
	}
}
