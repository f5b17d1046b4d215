//go:build !windows

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

package discovery

import (
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// scanLocalRegistry has no non-Windows implementation; the seed step
// treats this as just another failed fallback and moves on to the
// single-instance builder.
func scanLocalRegistry(log logrus.FieldLogger) ([]Builder, error) {
	return nil, trace.NotImplemented("local registry scanning is only available on Windows")
}
