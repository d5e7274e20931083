package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testArticleHTML = `<!DOCTYPE html>
<html>
<head><title>Article</title></head>
<body>
  <nav>irrelevant navigation</nav>
  <div class="entry-content">
    <h2>Heading</h2>
    <p>First paragraph with a <a href="/more">relative link</a>.</p>
    <script>alert("stripped")</script>
  </div>
  <footer>irrelevant footer</footer>
</body>
</html>`

func newTestResolver() *Resolver {
	return NewResolver(&http.Client{}, "test-agent", 5*time.Second)
}

func TestResolveWithSelector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(testArticleHTML))
	}))
	defer server.Close()

	markdown := newTestResolver().Resolve(context.Background(), server.URL, ".entry-content")

	if markdown == "" {
		t.Fatal("Expected non-empty markdown")
	}
	if !strings.Contains(markdown, "Heading") {
		t.Errorf("Expected heading in markdown, got: %s", markdown)
	}
	if !strings.Contains(markdown, "First paragraph") {
		t.Errorf("Expected paragraph in markdown, got: %s", markdown)
	}
	if strings.Contains(markdown, "irrelevant") {
		t.Errorf("Expected content outside the selector to be excluded, got: %s", markdown)
	}
	if strings.Contains(markdown, "alert(") {
		t.Errorf("Expected scripts to be sanitized away, got: %s", markdown)
	}
}

func TestResolveSelectorMatchesNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(testArticleHTML))
	}))
	defer server.Close()

	if got := newTestResolver().Resolve(context.Background(), server.URL, ".does-not-exist"); got != "" {
		t.Errorf("Expected empty content for unmatched selector, got: %s", got)
	}
}

func TestResolveFetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if got := newTestResolver().Resolve(context.Background(), server.URL, ".entry-content"); got != "" {
		t.Errorf("Expected empty content on fetch failure, got: %s", got)
	}
}

func TestResolveUnreachable(t *testing.T) {
	if got := newTestResolver().Resolve(context.Background(), "http://127.0.0.1:1/page", ".c"); got != "" {
		t.Errorf("Expected empty content for unreachable page, got: %s", got)
	}
}

func TestResolveNonHTMLContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer server.Close()

	if got := newTestResolver().Resolve(context.Background(), server.URL, ""); got != "" {
		t.Errorf("Expected empty content for non-HTML page, got: %s", got)
	}
}

func TestResolveReadabilityFallback(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head><title>Long Article</title></head>
<body>
  <article>
    <h1>Long Article</h1>
    <p>` + strings.Repeat("Sufficiently long article text for readability to pick up. ", 20) + `</p>
  </article>
</body>
</html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer server.Close()

	// No selector configured: readability picks the article region
	markdown := newTestResolver().Resolve(context.Background(), server.URL, "")
	if !strings.Contains(markdown, "Sufficiently long article text") {
		t.Errorf("Expected readability-extracted content, got: %s", markdown)
	}
}
