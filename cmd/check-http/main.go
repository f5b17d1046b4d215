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

// Command check-http issues a single HTTP request against a configured
// URL, scores the response against the predicate battery in
// lib/httpcheck, prints a Nagios-plugin-shaped result line, and exits
// with the aggregated state code.
package main

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"

	"github.com/checkmk/agent-collectors/api/types"
	"github.com/checkmk/agent-collectors/lib/httpcheck"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		url               string
		method            string
		userAgent         string
		onRedirect        string
		timeout           time.Duration
		expectedStatusesRaw []string
		responseTimeWarn  float64
		responseTimeCrit  float64
		pageSizeMin       int
		pageSizeMax       int
		expectString      string
		expectRegex       string
		negateRegex       bool
		certWarnDays      int64
		certCritDays      int64
		noCertCheck       bool
		insecureSkipCerts bool
	)

	app := kingpin.New("check-http", "Checkmk synthetic HTTP probe")
	app.Flag("url", "URL to request").Required().StringVar(&url)
	app.Flag("method", "HTTP method").Default("GET").StringVar(&method)
	app.Flag("user-agent", "User-Agent header to send").StringVar(&userAgent)
	app.Flag("onredirect", "ok|warning|critical|sticky|stickyport|follow").Default("follow").StringVar(&onRedirect)
	app.Flag("timeout", "Request timeout").Default("10s").DurationVar(&timeout)
	app.Flag("expect", "Accepted HTTP status codes (repeatable)").StringsVar(&expectedStatusesRaw)
	app.Flag("response-time-warn", "Response time warning threshold, seconds").Float64Var(&responseTimeWarn)
	app.Flag("response-time-crit", "Response time critical threshold, seconds").Float64Var(&responseTimeCrit)
	app.Flag("min-size", "Minimum accepted page size, bytes").IntVar(&pageSizeMin)
	app.Flag("max-size", "Maximum accepted page size, bytes").IntVar(&pageSizeMax)
	app.Flag("string", "Require this exact string in the body").StringVar(&expectString)
	app.Flag("regex", "Require this regex to match the body").StringVar(&expectRegex)
	app.Flag("negate-regex", "Invert --regex: fail when it matches").BoolVar(&negateRegex)
	app.Flag("cert-warn-days", "Certificate expiry warning threshold, days").Int64Var(&certWarnDays)
	app.Flag("cert-crit-days", "Certificate expiry critical threshold, days").Int64Var(&certCritDays)
	app.Flag("no-cert-check", "Do not evaluate certificate expiry").BoolVar(&noCertCheck)
	app.Flag("insecure", "Skip TLS certificate verification").BoolVar(&insecureSkipCerts)

	if _, err := app.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, "check-http: "+err.Error())
		return int(types.Unknown.Code())
	}

	redirectPolicy, err := parseRedirectPolicy(onRedirect)
	if err != nil {
		fmt.Fprintln(os.Stderr, "check-http: "+err.Error())
		return int(types.Unknown.Code())
	}

	expectedStatuses := make([]int, 0, len(expectedStatusesRaw))
	for _, s := range expectedStatusesRaw {
		code, err := strconv.Atoi(s)
		if err != nil {
			fmt.Fprintln(os.Stderr, "check-http: invalid --expect value "+s)
			return int(types.Unknown.Code())
		}
		expectedStatuses = append(expectedStatuses, code)
	}

	params := httpcheck.CheckParameters{
		StatusCodes:             expectedStatuses,
		DisableCertVerification: noCertCheck,
	}
	if pageSizeMin > 0 || pageSizeMax > 0 {
		bounds := types.LowerBound(pageSizeMin)
		if pageSizeMax > 0 {
			bounds = types.LowerUpperBound(pageSizeMin, pageSizeMax)
		}
		params.PageSize = &bounds
	}
	if responseTimeWarn > 0 {
		if responseTimeCrit > 0 {
			levels := types.WarnCritLevel(responseTimeWarn, responseTimeCrit)
			params.ResponseTimeLevels = &levels
		} else {
			levels := types.WarnLevel(responseTimeWarn)
			params.ResponseTimeLevels = &levels
		}
	}
	if certWarnDays > 0 {
		if certCritDays > 0 {
			levels := types.WarnCritLowerLevel(certWarnDays, certCritDays)
			params.CertificateLevels = &levels
		} else {
			levels := types.WarnLowerLevel(certWarnDays)
			params.CertificateLevels = &levels
		}
	}
	if expectString != "" {
		params.BodyMatchers = append(params.BodyMatchers, httpcheck.ContainsMatcher(expectString))
	}
	if expectRegex != "" {
		re, err := regexp.Compile(expectRegex)
		if err != nil {
			fmt.Fprintln(os.Stderr, "check-http: invalid --regex: "+err.Error())
			return int(types.Unknown.Code())
		}
		params.BodyMatchers = append(params.BodyMatchers, httpcheck.RegexMatcher(re, !negateRegex))
	}

	info := httpcheck.RequestInfo{
		URL:        url,
		Method:     method,
		UserAgent:  userAgent,
		OnRedirect: redirectPolicy,
		Timeout:    timeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
	defer cancel()

	resp, fetchErr := httpcheck.Fetch(ctx, info, insecureSkipCerts)
	results := httpcheck.CollectResponseChecks(resp, fetchErr, info, params)

	fmt.Print(httpcheck.Render(results))
	return httpcheck.AggregateState(results).Code()
}

func parseRedirectPolicy(s string) (httpcheck.OnRedirect, error) {
	switch strings.ToLower(s) {
	case "ok":
		return httpcheck.RedirectOk, nil
	case "warning":
		return httpcheck.RedirectWarning, nil
	case "critical":
		return httpcheck.RedirectCritical, nil
	case "sticky":
		return httpcheck.RedirectSticky, nil
	case "stickyport":
		return httpcheck.RedirectStickyport, nil
	case "follow":
		return httpcheck.RedirectFollow, nil
	default:
		return 0, trace.BadParameter("unknown --onredirect value %q", s)
	}
}
