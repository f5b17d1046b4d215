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
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"github.com/gravitational/trace"
)

// Response is the processed result of a single probe request: exactly
// the fields the predicate battery in checks.go needs, independent of
// net/http's own types.
type Response struct {
	FinalURL       *url.URL
	RedirectTarget *url.URL
	Status         int
	StatusText     string
	Proto          string
	TimeHeaders    time.Duration
	TimeBody       *time.Duration
	Body           *Body
	BodyErr        error
	Headers        http.Header
	PeerCert       *x509.Certificate
}

// Fetch issues exactly one HTTP request execution contract:
// redirects are followed by the transport only when the policy is
// RedirectFollow, otherwise the first redirect response is captured
// and returned unfollowed for checkRedirect to classify.
func Fetch(ctx context.Context, info RequestInfo, insecureSkipVerify bool) (*Response, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: insecureSkipVerify},
	}
	client := &http.Client{
		Timeout:   info.Timeout,
		Transport: transport,
	}
	if info.OnRedirect != RedirectFollow {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	req, err := http.NewRequestWithContext(ctx, info.Method, info.URL, nil)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if info.UserAgent != "" {
		req.Header.Set("User-Agent", info.UserAgent)
	}

	start := time.Now()
	var headerDone time.Time
	clientTrace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() { headerDone = time.Now() },
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), clientTrace))

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if headerDone.IsZero() {
		headerDone = time.Now()
	}
	result := &Response{
		FinalURL:    resp.Request.URL,
		Status:      resp.StatusCode,
		StatusText:  resp.Status,
		Proto:       resp.Proto,
		TimeHeaders: headerDone.Sub(start),
		Headers:     resp.Header,
	}
	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		result.PeerCert = resp.TLS.PeerCertificates[0]
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 && info.OnRedirect != RedirectFollow {
		if loc := resp.Header.Get("Location"); loc != "" {
			if target, err := resp.Request.URL.Parse(loc); err == nil {
				result.RedirectTarget = target
			}
		}
		return result, nil
	}

	bodyStart := time.Now()
	data, readErr := io.ReadAll(resp.Body)
	bodyTime := time.Since(bodyStart)
	result.TimeBody = &bodyTime
	if readErr != nil {
		result.BodyErr = readErr
	} else {
		result.Body = &Body{Text: string(data), Length: len(data)}
	}
	return result, nil
}
