package breach

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/systmms/credkeeper/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, false)
}

func digestParts(candidate string) (prefix, suffix string) {
	digest := fmt.Sprintf("%X", sha1.Sum([]byte(candidate)))
	return digest[:5], digest[5:]
}

func TestBreachedCandidateReturnsCount(t *testing.T) {
	const candidate = "Password123!"
	_, suffix := digestParts(candidate)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "0000000000000000000000000000000000000:1\r\n")
		fmt.Fprintf(w, "%s:42371\r\n", suffix)
		fmt.Fprintf(w, "FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF:9\r\n")
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, testLogger())
	res := c.Check(context.Background(), candidate)
	if !res.Checked {
		t.Fatal("lookup should be marked checked")
	}
	if res.Count != 42371 {
		t.Errorf("Count = %d, want 42371", res.Count)
	}
}

func TestCleanCandidateReturnsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "0000000000000000000000000000000000000:1\n")
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, testLogger())
	res := c.Check(context.Background(), "Xq7#mZk2!pWv9rTn")
	if !res.Checked {
		t.Fatal("lookup should be marked checked")
	}
	if res.Count != 0 {
		t.Errorf("Count = %d, want 0", res.Count)
	}
}

func TestOnlyPrefixLeavesTheProcess(t *testing.T) {
	const candidate = "Sup3r$ecretValue"
	prefix, suffix := digestParts(candidate)

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, testLogger())
	c.Check(context.Background(), candidate)

	if !strings.HasSuffix(gotPath, "/"+prefix) {
		t.Errorf("request path %q should end with the 5-char prefix %q", gotPath, prefix)
	}
	if strings.Contains(gotPath, suffix) {
		t.Error("digest suffix must never be transmitted")
	}
	if strings.Contains(gotPath, candidate) {
		t.Error("raw candidate must never be transmitted")
	}
}

func TestServerErrorIsUnchecked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, testLogger())
	res := c.Check(context.Background(), "whatever")
	if res.Checked {
		t.Error("failed lookup must not be marked checked")
	}
	if res.Count != 0 {
		t.Errorf("failed lookup must report zero count, got %d", res.Count)
	}
}

func TestTimeoutIsUnchecked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, 20*time.Millisecond, testLogger())
	res := c.Check(context.Background(), "whatever")
	if res.Checked {
		t.Error("timed-out lookup must not be marked checked")
	}
}

func TestUnreachableEndpointIsUnchecked(t *testing.T) {
	c := New("http://127.0.0.1:1/range/", 100*time.Millisecond, testLogger())
	res := c.Check(context.Background(), "whatever")
	if res.Checked || res.Count != 0 {
		t.Errorf("unreachable endpoint should yield zero unchecked result, got %+v", res)
	}
}

func TestMatchSuffixMalformedLines(t *testing.T) {
	body := "garbage\nBADCOUNT:xx\nABC:-3\nDEF:7\n"
	if got := matchSuffix(body, "DEF"); got != 7 {
		t.Errorf("matchSuffix = %d, want 7", got)
	}
	if got := matchSuffix(body, "ABC"); got != 0 {
		t.Errorf("negative counts are ignored, got %d", got)
	}
	if got := matchSuffix(body, "ZZZ"); got != 0 {
		t.Errorf("missing suffix should be 0, got %d", got)
	}
}
