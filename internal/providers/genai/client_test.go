package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestEditImageSendsPromptAndImage(t *testing.T) {
	source := testPNG(t, 4, 4)
	first := base64.StdEncoding.EncodeToString([]byte("frame-one"))
	second := base64.StdEncoding.EncodeToString([]byte("frame-two"))

	var captured geminiGenerateContentRequest
	client, err := NewClient(Options{
		APIKey:  "key",
		BaseURL: "https://gemini.test/v1beta/",
		Model:   "gemini-test",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.URL.Path != "/v1beta/models/gemini-test:generateContent" {
				t.Fatalf("path = %q", r.URL.Path)
			}
			if r.Header.Get("x-goog-api-key") != "key" {
				t.Fatalf("api key header missing")
			}
			if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[
				{"text":"here you go"},
				{"inlineData":{"mimeType":"image/png","data":"`+first+`"}},
				{"inlineData":{"mimeType":"image/png","data":"`+second+`"}}
			]}}]}`), nil
		})},
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	assets, err := client.EditImage(context.Background(), ImageEditRequest{
		Prompt:    "add a caption",
		Image:     source,
		MimeType:  "image/png",
		RequestID: "job-1",
	})
	if err != nil {
		t.Fatalf("EditImage returned error: %v", err)
	}
	if len(assets) != 2 || string(assets[0].Data) != "frame-one" || string(assets[1].Data) != "frame-two" {
		t.Fatalf("unexpected assets: %+v", assets)
	}

	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 2 {
		t.Fatalf("unexpected request contents: %+v", captured.Contents)
	}
	parts := captured.Contents[0].Parts
	if parts[0].Text != "add a caption" {
		t.Fatalf("prompt part = %q", parts[0].Text)
	}
	if parts[1].InlineData == nil || parts[1].InlineData.Data != base64.StdEncoding.EncodeToString(source) {
		t.Fatalf("image part not sent inline")
	}
	if captured.GenerationConfig == nil || len(captured.GenerationConfig.ResponseModalities) != 2 {
		t.Fatalf("response modalities not requested: %+v", captured.GenerationConfig)
	}
}

func TestEditImageReturnsEmptyWhenNoImage(t *testing.T) {
	client, _ := NewClient(Options{
		APIKey: "key",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"I cannot edit this photo"}]}}]}`), nil
		})},
	})
	assets, err := client.EditImage(context.Background(), ImageEditRequest{Prompt: "p", Image: []byte("img")})
	if err != nil {
		t.Fatalf("EditImage returned error: %v", err)
	}
	if len(assets) != 0 {
		t.Fatalf("assets = %d, want 0", len(assets))
	}
}

func TestEditImageErrors(t *testing.T) {
	tests := []struct {
		name string
		rt   roundTripFunc
		want string
	}{
		{
			name: "transport",
			rt: func(*http.Request) (*http.Response, error) {
				return nil, errors.New("boom")
			},
			want: "invoke gemini",
		},
		{
			name: "api error",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota exceeded"}}`), nil
			},
			want: "gemini status 429: quota exceeded",
		},
		{
			name: "blocked",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`), nil
			},
			want: "prompt blocked: SAFETY",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := NewClient(Options{APIKey: "key", HTTPClient: &http.Client{Transport: tc.rt}})
			_, err := client.EditImage(context.Background(), ImageEditRequest{Prompt: "p", Image: []byte("img")})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("EditImage error = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestEditImageSyntheticWithoutKey(t *testing.T) {
	client, err := NewClient(Options{
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			t.Fatalf("synthetic mode must not call the network")
			return nil, nil
		})},
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if !client.Synthetic() {
		t.Fatalf("client without key should be synthetic")
	}

	assets, err := client.EditImage(context.Background(), ImageEditRequest{Prompt: "p", Image: testPNG(t, 10, 10)})
	if err != nil {
		t.Fatalf("EditImage returned error: %v", err)
	}
	if len(assets) != 1 || assets[0].MimeType != "image/png" {
		t.Fatalf("unexpected synthetic assets: %+v", assets)
	}
	decoded, err := png.Decode(bytes.NewReader(assets[0].Data))
	if err != nil {
		t.Fatalf("decode synthetic frame: %v", err)
	}
	top := color.RGBAModel.Convert(decoded.At(0, 0)).(color.RGBA)
	bottom := color.RGBAModel.Convert(decoded.At(0, 9)).(color.RGBA)
	if top.R != 255 || bottom.R >= top.R {
		t.Fatalf("caption band not darkened: top=%v bottom=%v", top, bottom)
	}
}

func TestEditImageRejectsEmptySource(t *testing.T) {
	client, _ := NewClient(Options{APIKey: "key"})
	if _, err := client.EditImage(context.Background(), ImageEditRequest{Prompt: "p"}); err == nil {
		t.Fatalf("expected error for empty source image")
	}
}
