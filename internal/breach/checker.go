package breach

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/systmms/credkeeper/internal/logging"
)

// DefaultEndpoint is the public compromised-credential range service.
const DefaultEndpoint = "https://api.pwnedpasswords.com/range/"

// DefaultTimeout bounds one range lookup. Breach checks are advisory and
// never retried.
const DefaultTimeout = 5 * time.Second

// Result is the outcome of one breach lookup. Checked is false when the
// lookup could not be completed; callers must distinguish "verified clean"
// from "could not verify" and never treat an unchecked candidate as
// breached.
type Result struct {
	Count   int  `json:"count"`
	Checked bool `json:"checked"`
}

// Checker queries a range-lookup service using the k-anonymity protocol:
// only the first five characters of the candidate's digest are ever sent
// over the network.
type Checker struct {
	endpoint string
	client   *http.Client
	logger   *logging.Logger
}

// New creates a breach checker against the given endpoint. An empty
// endpoint selects the public service.
func New(endpoint string, timeout time.Duration, logger *logging.Logger) *Checker {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Check looks the candidate up in the breach corpus. The candidate is
// hashed locally; the request carries only the five-character digest
// prefix. Any transport failure yields {Count: 0, Checked: false} rather
// than an error: a failed lookup is neither "breached" nor silently
// "clean".
func (c *Checker) Check(ctx context.Context, candidate string) Result {
	digest := fmt.Sprintf("%X", sha1.Sum([]byte(candidate)))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+prefix, nil)
	if err != nil {
		c.logger.Warn("Breach lookup request could not be built: %v", err)
		return Result{}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Breach lookup unavailable: %v", err)
		return Result{}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Breach lookup returned status %d", resp.StatusCode)
		return Result{}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("Breach lookup response unreadable: %v", err)
		return Result{}
	}

	count := matchSuffix(string(body), suffix)
	return Result{Count: count, Checked: true}
}

// matchSuffix scans the newline-delimited SUFFIX:COUNT response for an
// exact suffix match.
func matchSuffix(body, suffix string) int {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		respSuffix, countStr, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if !strings.EqualFold(respSuffix, suffix) {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil || count < 0 {
			continue
		}
		return count
	}
	return 0
}
