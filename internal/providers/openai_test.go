package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewOpenAIClient("test-key", srv.URL, "gpt-4o-mini", 512, 0.7, 5*time.Second)
	c.retryConfig = RetryConfig{MaxRetries: 0}
	return c
}

func completionResponse(text string) string {
	quoted, _ := json.Marshal(text)
	return `{"choices":[{"message":{"content":` + string(quoted) + `},"finish_reason":"stop"}]}`
}

func TestCompleteSendsChatRequest(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(completionResponse("สวัสดีครับ")))
	})

	out, err := client.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "สวัสดีครับ" {
		t.Errorf("out = %q", out)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %s", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(512) {
		t.Errorf("max_tokens = %v", gotBody["max_tokens"])
	}
}

func TestCompleteAPIErrorBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	})

	_, err := client.Complete(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("err = %v", err)
	}
}

func TestCompleteHTTPErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := client.Complete(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Errorf("err = %v", err)
	}
}

func TestAnalyzeImageEncodesDataURI(t *testing.T) {
	var gotBody struct {
		Messages []struct {
			Content []map[string]any `json:"content"`
		} `json:"messages"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(completionResponse("a cat")))
	})

	out, err := client.AnalyzeImage(context.Background(), "describe", []byte{0x89, 0x50}, "image/png")
	if err != nil {
		t.Fatalf("AnalyzeImage: %v", err)
	}
	if out != "a cat" {
		t.Errorf("out = %q", out)
	}
	if len(gotBody.Messages) != 1 || len(gotBody.Messages[0].Content) != 2 {
		t.Fatalf("unexpected message shape: %+v", gotBody)
	}
	img, _ := gotBody.Messages[0].Content[1]["image_url"].(map[string]any)
	url, _ := img["url"].(string)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("image url = %q", url)
	}
}

func TestAnalyzeDocumentAttachesFile(t *testing.T) {
	var gotBody struct {
		Messages []struct {
			Content []map[string]any `json:"content"`
		} `json:"messages"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(completionResponse("summary")))
	})

	if _, err := client.AnalyzeDocument(context.Background(), "summarize", []byte("%PDF"), "report.pdf"); err != nil {
		t.Fatalf("AnalyzeDocument: %v", err)
	}
	file, _ := gotBody.Messages[0].Content[1]["file"].(map[string]any)
	if file["filename"] != "report.pdf" {
		t.Errorf("filename = %v", file["filename"])
	}
	data, _ := file["file_data"].(string)
	if !strings.HasPrefix(data, "data:application/pdf;base64,") {
		t.Errorf("file_data = %q", data)
	}
}
