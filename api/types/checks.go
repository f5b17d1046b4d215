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

package types

// State is the ordered Checkmk check state: Ok < Warn < Crit < Unknown.
type State int

const (
	Ok State = iota
	Warn
	Crit
	Unknown
)

func (s State) String() string {
	switch s {
	case Ok:
		return "OK"
	case Warn:
		return "WARNING"
	case Crit:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Code is the numeric state code Checkmk expects in output lines.
func (s State) Code() int {
	switch s {
	case Ok:
		return 0
	case Warn:
		return 1
	case Crit:
		return 2
	default:
		return 3
	}
}

// MaxState folds two states, taking the worse of the two; Unknown is
// always worst.
func MaxState(a, b State) State {
	if a == Unknown || b == Unknown {
		return Unknown
	}
	if b > a {
		return b
	}
	return a
}

// Bounds is an inclusive [Lower, Upper] range used by a threshold level.
// Either bound may be absent.
type Bounds[T any] struct {
	Lower    *T
	Upper    *T
	HasLower bool
	HasUpper bool
}

// LowerBound constructs a Bounds with only a lower bound set.
func LowerBound[T any](l T) Bounds[T] {
	return Bounds[T]{Lower: &l, HasLower: true}
}

// LowerUpperBound constructs a Bounds with both bounds set.
func LowerUpperBound[T any](l, u T) Bounds[T] {
	return Bounds[T]{Lower: &l, HasLower: true, Upper: &u, HasUpper: true}
}

// UpperLevels is either warn-only or warn+crit, compared against a value
// that should stay low.
type UpperLevels[T any] struct {
	Warn     T
	Crit     *T
	HasCrit  bool
}

func WarnLevel[T any](w T) UpperLevels[T] { return UpperLevels[T]{Warn: w} }

func WarnCritLevel[T any](w, c T) UpperLevels[T] {
	return UpperLevels[T]{Warn: w, Crit: &c, HasCrit: true}
}

// LowerLevels is symmetric to UpperLevels, for a value that should stay
// high.
type LowerLevels[T any] struct {
	Warn    T
	Crit    *T
	HasCrit bool
}

func WarnLowerLevel[T any](w T) LowerLevels[T] { return LowerLevels[T]{Warn: w} }

func WarnCritLowerLevel[T any](w, c T) LowerLevels[T] {
	return LowerLevels[T]{Warn: w, Crit: &c, HasCrit: true}
}

// ResultKind distinguishes the variants of the CheckResult sum type.
type ResultKind int

const (
	ResultSummary ResultKind = iota
	ResultDetails
	ResultMetric
)

// Metric is a single performance-data point attached to a CheckResult.
type Metric struct {
	Name  string
	Value float64
	Unit  string
	// Levels/Lower/Upper mirror the metric's own warn/crit thresholds
	// for graphing; nil when not applicable.
	Warn  *float64
	Crit  *float64
	Lower *float64
	Upper *float64
}

// CheckResult is one line of a check's structured output: either a
// one-line Summary, a Details line, or a Metric.
type CheckResult struct {
	Kind   ResultKind
	State  State
	Text   string
	Metric Metric
}

func Summary(state State, text string) CheckResult {
	return CheckResult{Kind: ResultSummary, State: state, Text: text}
}

func Details(state State, text string) CheckResult {
	return CheckResult{Kind: ResultDetails, State: state, Text: text}
}

func MetricResult(m Metric) CheckResult {
	return CheckResult{Kind: ResultMetric, Metric: m}
}
