/*
Copyright 2023 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package httpcheck

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/checkmk/agent-collectors/api/types"
)

func mustURL(t *testing.T, raw string) *url.URL {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestCheckURLsNoRedirect(t *testing.T) {
	got := checkURLs("https://foo.bar/", mustURL(t, "https://foo.bar/"), "")
	assert.Equal(t, []types.CheckResult{
		types.Summary(types.Ok, "https://foo.bar/"),
		types.Details(types.Ok, "URL to test: https://foo.bar/"),
	}, got)
}

func TestCheckURLsRedirected(t *testing.T) {
	got := checkURLs("https://foo.bar/", mustURL(t, "https://foo.bar/baz"), "")
	assert.Equal(t, []types.CheckResult{
		types.Summary(types.Ok, "https://foo.bar/"),
		types.Details(types.Ok, "URL to test: https://foo.bar/"),
		types.Details(types.Ok, "Followed redirect to: https://foo.bar/baz"),
	}, got)
}

func TestCheckStatusUncheckedOK(t *testing.T) {
	got := checkStatus(200, "200 OK", nil)
	assert.Equal(t, []types.CheckResult{
		types.Summary(types.Ok, "Status: 200 OK"),
		types.Details(types.Ok, "Status: 200 OK"),
	}, got)
}

func TestCheckStatusUncheckedClientError(t *testing.T) {
	got := checkStatus(417, "417 Expectation Failed", nil)
	assert.Equal(t, types.Warn, got[0].State)
}

func TestCheckStatusUncheckedServerError(t *testing.T) {
	got := checkStatus(500, "500 Internal Server Error", nil)
	assert.Equal(t, types.Crit, got[0].State)
}

func TestCheckStatusCheckedOK(t *testing.T) {
	got := checkStatus(200, "200 OK", []int{200})
	assert.Equal(t, types.Ok, got[0].State)
}

func TestCheckStatusCheckedMismatchSingle(t *testing.T) {
	got := checkStatus(200, "200 OK", []int{226})
	assert.Equal(t, "Status: 200 OK (expected 226 IM Used)", got[0].Text)
	assert.Equal(t, types.Crit, got[0].State)
}

func TestCheckStatusCheckedMismatchMultiple(t *testing.T) {
	got := checkStatus(200, "200 OK", []int{202, 226})
	assert.Equal(t, "Status: 200 OK (expected one of [202 226])", got[0].Text)
	assert.Equal(t, types.Crit, got[0].State)
}

func TestCheckPageAge(t *testing.T) {
	now := time.Date(2023, 11, 16, 0, 0, 0, 0, time.UTC)
	headers := http.Header{}
	headers.Set("Last-Modified", "Wed, 15 Nov 2023 00:00:00 GMT")
	levels := types.WarnLevel[int64](43200)

	got := checkPageAge(now, headers, &levels)
	require.Len(t, got, 2)
	assert.Equal(t, types.Warn, got[0].State)
	assert.Equal(t, "Page age: 86400 seconds (warn at 43200 seconds)", got[0].Text)
}

func TestCheckPageAgeNoLevels(t *testing.T) {
	assert.Nil(t, checkPageAge(time.Now(), http.Header{}, nil))
}

func TestCheckPageAgeMissingHeader(t *testing.T) {
	levels := types.WarnLevel[int64](3600)
	got := checkPageAge(time.Now(), http.Header{}, &levels)
	assert.Equal(t, "Can't determine page age", got[0].Text)
	assert.Equal(t, types.Crit, got[0].State)
}

func TestCheckRedirectPolicies(t *testing.T) {
	target := mustURL(t, "https://foo.bar/")
	cases := []struct {
		policy OnRedirect
		state  types.State
		text   string
	}{
		{RedirectOk, types.Ok, "Stopped on redirect to: https://foo.bar/"},
		{RedirectWarning, types.Warn, "Stopped on redirect to: https://foo.bar/"},
		{RedirectCritical, types.Crit, "Stopped on redirect to: https://foo.bar/"},
		{RedirectSticky, types.Warn, "Stopped on redirect to: https://foo.bar/ (changed IP)"},
		{RedirectStickyport, types.Warn, "Stopped on redirect to: https://foo.bar/ (changed IP/port)"},
	}
	for _, c := range cases {
		got := checkRedirect(301, c.policy, target)
		require.NotEmpty(t, got)
		last := got[len(got)-1]
		assert.Equal(t, c.state, last.State)
		assert.Equal(t, c.text, last.Text)
	}
}

func TestCheckRedirectFollowNeverFires(t *testing.T) {
	assert.Empty(t, checkRedirect(301, RedirectFollow, mustURL(t, "https://foo.bar/")))
}

func TestCheckRedirectNonRedirectStatus(t *testing.T) {
	assert.Empty(t, checkRedirect(200, RedirectCritical, nil))
}

func TestCheckBodyMatchingContains(t *testing.T) {
	body := &Body{Text: "foobar"}
	got := checkBodyMatching(body, []TextMatcher{ContainsMatcher("bar")}, types.Crit)
	assert.Equal(t, []types.CheckResult{
		types.Details(types.Ok, "Expected string in body: bar (found)"),
	}, got)
}

func TestCheckBodyMatchingNotFound(t *testing.T) {
	body := &Body{Text: "foobar"}
	got := checkBodyMatching(body, []TextMatcher{ContainsMatcher("baz")}, types.Crit)
	assert.Equal(t, []types.CheckResult{
		types.Summary(types.Crit, "Expected string in body: baz (not found)"),
		types.Details(types.Crit, "Expected string in body: baz (not found)"),
	}, got)
}

func TestCheckPageSize(t *testing.T) {
	body := &Body{Length: 42}
	bounds := types.LowerBound(56)
	got := checkPageSize(body, &bounds)
	assert.Equal(t, types.Warn, got[0].State)
	assert.Equal(t, "Page size: 42 Bytes (warn below 56 Bytes)", got[0].Text)
	metric := got[len(got)-1]
	assert.Equal(t, types.ResultMetric, metric.Kind)
	assert.Equal(t, "response_size", metric.Metric.Name)
	assert.Equal(t, 42.0, metric.Metric.Value)
}

func TestCheckCertificateDisabled(t *testing.T) {
	got := checkCertificate(nil, nil, true)
	assert.Equal(t, []types.CheckResult{
		types.Details(types.Ok, "Server certificate validity: ignored"),
	}, got)
}

func TestCheckCertificateNoCert(t *testing.T) {
	assert.Nil(t, checkCertificate(nil, nil, false))
}

func TestCheckUserAgent(t *testing.T) {
	assert.Equal(t, []types.CheckResult{
		types.Details(types.Ok, "User agent: Agent Smith"),
	}, checkUserAgent("Agent Smith"))
}

func TestRenderSecondsWithMS(t *testing.T) {
	assert.Equal(t, "5 seconds", renderSecondsWithMS(5.0))
	assert.Equal(t, "5.123 seconds", renderSecondsWithMS(5.123456789))
}
