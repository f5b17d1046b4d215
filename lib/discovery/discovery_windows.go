//go:build windows

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
	"golang.org/x/sys/windows/registry"

	"github.com/checkmk/agent-collectors/api/types"
)

// instanceNamesKeys mirrors the two registry-probe queries: the native
// 64-bit view and the Wow6432Node 32-bit view of the same key.
var instanceNamesKeys = []string{
	`SOFTWARE\Microsoft\Microsoft SQL Server\Instance Names\SQL`,
	`SOFTWARE\Wow6432Node\Microsoft\Microsoft SQL Server\Instance Names\SQL`,
}

// scanLocalRegistry reads the local machine's registered instance names
// directly out of HKEY_LOCAL_MACHINE, used when the main endpoint's
// registry-probe query fails outright.
func scanLocalRegistry(log logrus.FieldLogger) ([]Builder, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	var seeds []Builder
	var lastErr error
	for _, path := range instanceNamesKeys {
		key, err := registry.OpenKey(registry.LOCAL_MACHINE, path, registry.QUERY_VALUE)
		if err != nil {
			lastErr = err
			continue
		}
		names, err := key.ReadValueNames(0)
		key.Close()
		if err != nil {
			lastErr = err
			continue
		}
		for _, name := range names {
			seeds = append(seeds, Builder{Name: types.NewInstanceName(name)})
		}
	}
	if len(seeds) == 0 {
		if lastErr == nil {
			lastErr = trace.NotFound("no SQL Server instance registrations found under HKLM")
		}
		return nil, trace.Wrap(lastErr, "local registry scan failed")
	}
	return seeds, nil
}
