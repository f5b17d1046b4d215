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
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/checkmk/agent-collectors/api/types"
	"github.com/checkmk/agent-collectors/lib/checks"
)

// CollectResponseChecks runs the full predicate battery and
// returns the ordered list of check results. fetchErr is the error
// Fetch returned, if any; resp is nil in that case.
func CollectResponseChecks(resp *Response, fetchErr error, info RequestInfo, params CheckParameters) []types.CheckResult {
	if fetchErr != nil {
		return checkFetchError(fetchErr, info)
	}

	body, bodyResults := checkBody(resp)

	var out []types.CheckResult
	out = append(out, checkURLs(info.URL, resp.FinalURL, info.Server)...)
	out = append(out, checkRedirect(resp.Status, info.OnRedirect, resp.RedirectTarget)...)
	out = append(out, checkMethod(info.Method)...)
	out = append(out, checkVersion(resp.Proto)...)
	out = append(out, checkStatus(resp.Status, resp.StatusText, params.StatusCodes)...)
	out = append(out, checkResponseTime(resp.TimeHeaders, resp.TimeBody, params.ResponseTimeLevels, info.Timeout)...)
	out = append(out, bodyResults...)
	out = append(out, checkPageAge(time.Now(), resp.Headers, params.DocumentAgeLevels)...)
	out = append(out, checkPageSize(body, params.PageSize)...)
	out = append(out, checkCertificate(resp.PeerCert, params.CertificateLevels, params.DisableCertVerification)...)
	out = append(out, checkUserAgent(info.UserAgent)...)
	out = append(out, checkHeaders(resp.Headers, params.HeaderMatchers, params.ContentSearchFailState)...)
	out = append(out, checkBodyMatching(body, params.BodyMatchers, params.ContentSearchFailState)...)
	return out
}

func checkURLs(requestURL string, finalURL *url.URL, server string) []types.CheckResult {
	out := []types.CheckResult{
		types.Summary(types.Ok, requestURL),
		types.Details(types.Ok, "URL to test: "+requestURL),
	}
	if server != "" {
		out = append(out, types.Details(types.Ok, "Connected to server: "+server))
	}
	if finalURL != nil && finalURL.String() != requestURL {
		out = append(out, types.Details(types.Ok, "Followed redirect to: "+finalURL.String()))
	}
	return out
}

// checkFetchError classifies a transport-level failure. A timeout
// yields Crit with the configured timeout restated; a connection or
// too-many-redirects failure yields Crit with the error chain; anything
// else is Unknown.
func checkFetchError(err error, info RequestInfo) []types.CheckResult {
	cause := errorCause(err)

	var netErr net.Error
	if asNetError(err, &netErr) && netErr.Timeout() {
		return checks.Notice(types.Crit, fmt.Sprintf(
			"Could not connect to %s within %s", info.URL, renderSecondsWithMS(info.Timeout.Seconds())))
	}
	if isConnectOrRedirectError(err) {
		return checks.Notice(types.Crit, strings.ReplaceAll(cause, "\n", " - "))
	}
	return checks.Notice(types.Unknown, strings.ReplaceAll(cause, "\n", " - "))
}

func asNetError(err error, target *net.Error) bool {
	for err != nil {
		if ne, ok := err.(net.Error); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func isConnectOrRedirectError(err error) bool {
	msg := err.Error()
	if strings.Contains(msg, "stopped after") && strings.Contains(msg, "redirects") {
		return true
	}
	var opErr *net.OpError
	for e := err; e != nil; {
		if oe, ok := e.(*net.OpError); ok {
			opErr = oe
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return opErr != nil
}

func errorCause(err error) string {
	var parts []string
	for e := err; e != nil; {
		parts = append(parts, e.Error())
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func checkMethod(method string) []types.CheckResult {
	return []types.CheckResult{types.Details(types.Ok, "Method: "+method)}
}

func checkVersion(proto string) []types.CheckResult {
	text := "Version: " + proto
	return []types.CheckResult{
		types.Summary(types.Ok, text),
		types.Details(types.Ok, text),
	}
}

func checkStatus(status int, statusText string, accepted []int) []types.CheckResult {
	phrase := statusText
	if phrase == "" {
		phrase = fmt.Sprintf("%d %s", status, http.StatusText(status))
	}
	var state types.State
	suffix := ""
	switch {
	case len(accepted) == 0:
		switch {
		case status >= 400 && status < 500:
			state = types.Warn
		case status >= 500 && status < 600:
			state = types.Crit
		default:
			state = types.Ok
		}
	case containsInt(accepted, status):
		state = types.Ok
	case len(accepted) == 1:
		state = types.Crit
		suffix = fmt.Sprintf(" (expected %d %s)", accepted[0], http.StatusText(accepted[0]))
	default:
		state = types.Crit
		codes := make([]string, len(accepted))
		for i, c := range accepted {
			codes[i] = strconv.Itoa(c)
		}
		suffix = fmt.Sprintf(" (expected one of [%s])", strings.Join(codes, " "))
	}

	text := fmt.Sprintf("Status: %s%s", phrase, suffix)
	return []types.CheckResult{
		types.Summary(state, text),
		types.Details(state, text),
	}
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func checkRedirect(status int, onRedirect OnRedirect, target *url.URL) []types.CheckResult {
	if status < 300 || status >= 400 {
		return nil
	}
	text := "Stopped on redirect"
	if target != nil {
		text = "Stopped on redirect to: " + target.String()
	}
	switch onRedirect {
	case RedirectOk:
		return []types.CheckResult{types.Details(types.Ok, text)}
	case RedirectWarning:
		return checks.Notice(types.Warn, text)
	case RedirectCritical:
		return checks.Notice(types.Crit, text)
	case RedirectSticky:
		return checks.Notice(types.Warn, text+" (changed IP)")
	case RedirectStickyport:
		return checks.Notice(types.Warn, text+" (changed IP/port)")
	default: // RedirectFollow: a 3xx here would only occur via the final hop, never reached
		return nil
	}
}

type headerPair struct{ key, value string }

func checkHeaders(headers http.Header, matchers []HeaderMatcher, failState types.State) []types.CheckResult {
	if len(matchers) == 0 {
		return nil
	}
	pairs := make([]headerPair, 0, len(headers))
	for k, values := range headers {
		for _, v := range values {
			pairs = append(pairs, headerPair{k, latin1Decode(v)})
		}
	}
	// deterministic ordering for any-match scans
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	var out []types.CheckResult
	for _, m := range matchers {
		nameMatcher, valueMatcher := m.Name, m.Value
		var matchText, positiveText, negativeText string
		expectation := true
		if nameMatcher.isRegex() {
			expectation = nameMatcher.expectation
			if expectation {
				matchText, positiveText, negativeText = "Expected regex in HTTP headers", "match found", "no match found"
			} else {
				matchText, positiveText, negativeText = "Not expected regex in HTTP headers", "no match found", "match found"
			}
		} else {
			matchText, positiveText, negativeText = "Expected HTTP header", "found", "not found"
		}

		headerDesc := fmt.Sprintf("%s:%s", nameMatcher.Inner(), valueMatcher.Inner())
		found := matchOnHeaders(pairs, nameMatcher, valueMatcher, expectation)
		if found {
			out = append(out, types.Details(types.Ok, fmt.Sprintf("%s: %s (%s)", matchText, headerDesc, positiveText)))
		} else {
			out = append(out, checks.Notice(failState, fmt.Sprintf("%s: %s (%s)", matchText, headerDesc, negativeText))...)
		}
	}
	return out
}

func matchOnHeaders(pairs []headerPair, name, value TextMatcher, firstMatchOK bool) bool {
	if firstMatchOK {
		for _, p := range pairs {
			if name.MatchOn(p.key) && value.MatchOn(p.value) {
				return true
			}
		}
		return false
	}
	for _, p := range pairs {
		if !(name.MatchOn(p.key) && value.MatchOn(p.value)) {
			return false
		}
	}
	return true
}

// latin1Decode decodes a header value as ISO-8859-1, which RFC 9110
// allows for header values: Go's net/http hands header values over as
// raw bytes, and each byte becomes the code point of the same value.
func latin1Decode(s string) string {
	runes := make([]rune, len(s))
	for i := 0; i < len(s); i++ {
		runes[i] = rune(s[i])
	}
	return string(runes)
}

func checkBody(resp *Response) (*Body, []types.CheckResult) {
	if resp.Body == nil && resp.BodyErr == nil {
		return nil, nil
	}
	if resp.BodyErr != nil {
		return nil, checks.Notice(types.Crit, "Error fetching the response body")
	}
	return resp.Body, nil
}

func checkBodyMatching(body *Body, matchers []TextMatcher, failState types.State) []types.CheckResult {
	if body == nil {
		return nil
	}
	var out []types.CheckResult
	for _, m := range matchers {
		var matchText, positiveText, negativeText string
		if m.isRegex() {
			if m.expectation {
				matchText, positiveText, negativeText = "Expected regex in body", "match found", "no match found"
			} else {
				matchText, positiveText, negativeText = "Not expected regex in body", "no match found", "match found"
			}
		} else {
			matchText, positiveText, negativeText = "Expected string in body", "found", "not found"
		}

		if m.MatchOn(body.Text) {
			out = append(out, types.Details(types.Ok, fmt.Sprintf("%s: %s (%s)", matchText, m.Inner(), positiveText)))
		} else {
			out = append(out, checks.Notice(failState, fmt.Sprintf("%s: %s (%s)", matchText, m.Inner(), negativeText))...)
		}
	}
	return out
}

func checkPageSize(body *Body, limits *types.Bounds[int]) []types.CheckResult {
	if body == nil {
		return nil
	}
	state := types.Ok
	if limits != nil {
		if s := checks.Evaluate(*limits, body.Length, types.Warn); s != nil {
			state = *s
		}
	}
	boundsInfo := ""
	if state == types.Warn && limits != nil {
		switch {
		case limits.HasLower && !limits.HasUpper:
			boundsInfo = fmt.Sprintf(" (warn below %d Bytes)", *limits.Lower)
		case limits.HasLower && limits.HasUpper:
			boundsInfo = fmt.Sprintf(" (warn below/above %d Bytes/%d Bytes)", *limits.Lower, *limits.Upper)
		}
	}
	out := checks.Notice(state, fmt.Sprintf("Page size: %d Bytes%s", body.Length, boundsInfo))
	zero := 0.0
	out = append(out, types.MetricResult(types.Metric{
		Name: "response_size", Value: float64(body.Length), Unit: "B", Lower: &zero,
	}))
	return out
}

func checkResponseTime(timeHeaders time.Duration, timeBody *time.Duration, levels *types.UpperLevels[float64], timeout time.Duration) []types.CheckResult {
	responseTime := timeHeaders
	if timeBody != nil {
		responseTime += *timeBody
	}
	seconds := responseTime.Seconds()

	out := checks.CheckUpperLevels("Response time", seconds, renderSecondsWithMS, levels)

	var warn, crit *float64
	if levels != nil {
		w := levels.Warn
		warn = &w
		if levels.HasCrit {
			c := *levels.Crit
			crit = &c
		}
	}
	zero, to := 0.0, timeout.Seconds()
	out = append(out, types.MetricResult(types.Metric{
		Name: "response_time", Value: seconds, Unit: "s", Warn: warn, Crit: crit, Lower: &zero, Upper: &to,
	}))
	out = append(out, types.MetricResult(types.Metric{
		Name: "time_http_headers", Value: timeHeaders.Seconds(), Unit: "s",
	}))
	if timeBody != nil {
		out = append(out, types.MetricResult(types.Metric{
			Name: "time_http_body", Value: timeBody.Seconds(), Unit: "s",
		}))
	}
	return out
}

func checkPageAge(now time.Time, headers http.Header, levels *types.UpperLevels[int64]) []types.CheckResult {
	if levels == nil {
		return nil
	}
	raw := headers.Get("Last-Modified")
	if raw == "" {
		raw = headers.Get("Date")
	}
	if raw == "" {
		return checks.Notice(types.Crit, "Can't determine page age")
	}
	parsed, err := http.ParseTime(raw)
	if err != nil {
		return checks.Notice(types.Crit, "Can't decode page age")
	}
	if now.Before(parsed) {
		return checks.Notice(types.Crit, "Can't decode page age")
	}
	age := int64(now.Sub(parsed).Seconds())
	return checks.CheckUpperLevels("Page age", age, func(secs int64) string {
		return fmt.Sprintf("%d seconds", secs)
	}, levels)
}

func checkCertificate(cert *x509.Certificate, levels *types.LowerLevels[int64], disableVerification bool) []types.CheckResult {
	if disableVerification {
		return []types.CheckResult{types.Details(types.Ok, "Server certificate validity: ignored")}
	}
	if cert == nil {
		return nil
	}
	validityDays := int64(time.Until(cert.NotAfter).Hours() / 24)
	if validityDays < 0 {
		return checks.Notice(types.Crit, "Invalid server certificate")
	}
	return checks.CheckLowerLevels("Server certificate validity", validityDays, func(days int64) string {
		return fmt.Sprintf("%d days", days)
	}, levels)
}

func checkUserAgent(userAgent string) []types.CheckResult {
	return []types.CheckResult{types.Details(types.Ok, "User agent: "+userAgent)}
}

// renderSecondsWithMS formats to three decimal digits, then trims
// trailing zeros and a bare trailing decimal point.
func renderSecondsWithMS(val float64) string {
	s := strconv.FormatFloat(val, 'f', 3, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s + " seconds"
}
