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

// Package httpcheck implements a single-shot synthetic HTTP probe that
// issues one request, classifies the response against a redirect
// policy, and scores it against a battery of predicates, following
// idiomatic net/http + httptrace usage for the request/response
// plumbing.
package httpcheck

import (
	"regexp"
	"strings"
	"time"

	"github.com/checkmk/agent-collectors/api/types"
)

// OnRedirect is the redirect-handling policy applied to a 3xx response.
type OnRedirect int

const (
	RedirectOk OnRedirect = iota
	RedirectWarning
	RedirectCritical
	RedirectSticky
	RedirectStickyport
	RedirectFollow
)

// RequestInfo is the fixed, pre-request description of what to probe.
type RequestInfo struct {
	URL        string
	Method     string
	UserAgent  string
	OnRedirect OnRedirect
	Timeout    time.Duration
	// Server, if set, is reported as "Connected to server: <Server>".
	Server string
}

// CheckParameters is the predicate battery evaluated against a response.
type CheckParameters struct {
	// StatusCodes, when empty, accepts 2xx/3xx, warns on 4xx, crits on
	// 5xx; when non-empty, only exact members are accepted.
	StatusCodes            []int
	PageSize               *types.Bounds[int]
	ResponseTimeLevels     *types.UpperLevels[float64]
	DocumentAgeLevels      *types.UpperLevels[int64]
	BodyMatchers           []TextMatcher
	HeaderMatchers         []HeaderMatcher
	CertificateLevels      *types.LowerLevels[int64]
	DisableCertVerification bool
	ContentSearchFailState types.State
}

// matcherKind distinguishes the TextMatcher variants.
type matcherKind int

const (
	matchExact matcherKind = iota
	matchContains
	matchRegex
)

// TextMatcher evaluates a single piece of text (a header value or the
// response body) against an exact string, a substring, or a regex with
// a positive/negative expectation.
type TextMatcher struct {
	kind        matcherKind
	text        string
	regex       *regexp.Regexp
	expectation bool
}

// ExactMatcher requires the text to equal s exactly.
func ExactMatcher(s string) TextMatcher { return TextMatcher{kind: matchExact, text: s} }

// ContainsMatcher requires the text to contain s as a substring.
func ContainsMatcher(s string) TextMatcher { return TextMatcher{kind: matchContains, text: s} }

// RegexMatcher matches re against the text; expectation=false inverts
// the result (the matcher is satisfied when re does NOT match).
func RegexMatcher(re *regexp.Regexp, expectation bool) TextMatcher {
	return TextMatcher{kind: matchRegex, regex: re, expectation: expectation}
}

// Inner returns the matcher's underlying pattern/string for display.
func (m TextMatcher) Inner() string {
	if m.kind == matchRegex {
		return m.regex.String()
	}
	return m.text
}

// MatchOn reports whether text satisfies the matcher.
func (m TextMatcher) MatchOn(text string) bool {
	switch m.kind {
	case matchContains:
		return strings.Contains(text, m.text)
	case matchExact:
		return text == m.text
	case matchRegex:
		return m.regex.MatchString(text) == m.expectation
	default:
		return false
	}
}

func (m TextMatcher) isRegex() bool { return m.kind == matchRegex }

// HeaderMatcher pairs a header-name matcher with a header-value matcher;
// both are evaluated together against every header in the response.
type HeaderMatcher struct {
	Name  TextMatcher
	Value TextMatcher
}

// Body is the fetched response body, decoded as UTF-8 text.
type Body struct {
	Text   string
	Length int
}
