package fetch

import (
	"context"
	"net/url"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsPolicy answers robots.txt checks for a single host.
// A nil *RobotsPolicy, or one whose robots.txt could not be obtained, allows everything.
type RobotsPolicy struct {
	data      *robotstxt.RobotsData
	userAgent string
}

// LoadRobotsPolicy fetches robots.txt for the host of siteURL through f, so the
// request counts against the same admission gate and retry policy as page fetches.
// Any fetch or parse failure yields an allow-all policy.
func LoadRobotsPolicy(ctx context.Context, f *Fetcher, siteURL, userAgent string, log *logrus.Entry) *RobotsPolicy {
	policy := &RobotsPolicy{userAgent: userAgent}

	target, err := url.Parse(siteURL)
	if err != nil || target.Host == "" {
		log.Warnf("Cannot derive robots.txt location from %q, allowing all", siteURL)
		return policy
	}
	robotsURL := (&url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/robots.txt"}).String()
	robotsLog := log.WithField("robots_url", robotsURL)
	robotsLog.Info("Fetching robots.txt...")

	doc, err := f.Fetch(ctx, robotsURL)
	if err != nil {
		robotsLog.Warnf("Fetching robots.txt failed, allowing all: %v", err)
		return policy
	}

	data, err := robotstxt.FromString(doc.Body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt, allowing all: %v", err)
		return policy
	}

	robotsLog.Info("Successfully fetched and parsed robots.txt")
	policy.data = data
	return policy
}

// NewRobotsPolicy builds a policy from robots.txt content already in hand
func NewRobotsPolicy(content, userAgent string) (*RobotsPolicy, error) {
	data, err := robotstxt.FromString(content)
	if err != nil {
		return nil, err
	}
	return &RobotsPolicy{data: data, userAgent: userAgent}, nil
}

// Allowed reports whether the policy's user agent may fetch rawURL
func (p *RobotsPolicy) Allowed(rawURL string) bool {
	if p == nil || p.data == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return p.data.TestAgent(u.RequestURI(), p.userAgent)
}
