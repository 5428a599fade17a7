// Package robots fetches and evaluates robots.txt for a crawl origin.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// DefaultTimeout bounds the robots.txt request.
const DefaultTimeout = 10 * time.Second

// maxBodySize caps how much of robots.txt is read.
const maxBodySize = 512 * 1024

// Rules answers allow/deny questions for URLs on one origin.
// A nil *Rules allows everything.
type Rules struct {
	data *robotstxt.RobotsData
}

// Allowed reports whether agent may fetch rawURL.
func (r *Rules) Allowed(rawURL, agent string) bool {
	if r == nil || r.data == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return r.data.TestAgent(p, agent)
}

// Parse builds rules from a robots.txt body.
func Parse(body []byte) (*Rules, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, err
	}
	return &Rules{data: data}, nil
}

// Fetch downloads robots.txt from the origin of baseURL. Any failure
// (network, non-2xx, parse) degrades to nil rules, which allow everything.
func Fetch(ctx context.Context, client *http.Client, baseURL, userAgent string, log logrus.FieldLogger) *Rules {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	entry := log.WithField("url", robotsURL)

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		entry.WithError(err).Debug("robots.txt unavailable, crawling without restrictions")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		entry.WithField("status", resp.StatusCode).Debug("robots.txt not found, crawling without restrictions")
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil
	}
	rules, err := Parse(body)
	if err != nil {
		entry.WithError(err).Debug("robots.txt unparsable, crawling without restrictions")
		return nil
	}
	entry.Debug("robots.txt loaded")
	return rules
}
