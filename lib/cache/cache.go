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

// Package cache implements the on-disk, per-instance, per-section
// async-section cache. It is a single-writer, best-effort store —
// there is no locking because the single-pass model guarantees exactly
// one writer per file within a run.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Cache reads and writes section bodies under
// "<root>/mssql-<hash>/<name>".
type Cache struct {
	dir string
	log logrus.FieldLogger
}

// New returns a Cache rooted at root, scoped to the given config hash.
func New(root, configHash string, log logrus.FieldLogger) *Cache {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{dir: filepath.Join(root, "mssql-"+configHash), log: log}
}

// Read returns the cached body for name iff its modification-time age is
// <= maxAge. An age of exactly zero is always a miss, which is what
// makes a zero cache-age section behave as fully synchronous.
func (c *Cache) Read(name string, maxAge time.Duration) *string {
	if maxAge <= 0 {
		return nil
	}
	path := filepath.Join(c.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if time.Since(info.ModTime()) > maxAge {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.log.WithError(err).Warnf("cache: failed to read %s", name)
		return nil
	}
	body := string(data)
	return &body
}

// Write stores body under name, creating the cache directory if needed.
// Errors are logged and swallowed: the cache is a best-effort
// optimization, never a correctness requirement.
func (c *Cache) Write(name, body string) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.log.WithError(err).Warnf("cache: failed to create cache dir for %s", name)
		return
	}
	path := filepath.Join(c.dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		c.log.WithError(err).Warnf("cache: failed to write %s", name)
	}
}

// ConfigHash computes the stable 16-hex-digit hash (the first 16 hex
// digits of the SHA-256) of the given configuration bytes, used to scope
// the cache directory. mk-sql passes SQLConfig.Normalized(), so
// whitespace and comments do not change its hash; mk-oracle passes the
// raw file bytes.
func ConfigHash(normalized []byte) string {
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:])[:16]
}

// EntryName builds the cache-entry naming: "hostname;instance;section.mssql".
func EntryName(hostname, instance, section string) string {
	return fmt.Sprintf("%s;%s;%s.mssql", hostname, instance, section)
}
