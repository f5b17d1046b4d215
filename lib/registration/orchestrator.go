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

package registration

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/gravitational/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/checkmk/agent-collectors/api/types"
	"github.com/checkmk/agent-collectors/lib/registry"
)

var (
	registrationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registration_attempts_total",
			Help: "Number of site registration attempts by the agent controller, labeled by outcome.",
		},
		[]string{"outcome"},
	)
	registryConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "registry_connections",
			Help: "Number of trusted connections currently held in the connection registry, labeled by mode.",
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(registrationAttemptsTotal, registryConnections)
}

// observeRegistryConnections refreshes the registry_connections gauge
// from the registry's current push/pull/imported counts.
func observeRegistryConnections(snapshot types.RegisteredConnections) {
	registryConnections.WithLabelValues("push").Set(float64(len(snapshot.Push)))
	registryConnections.WithLabelValues("pull").Set(float64(len(snapshot.Pull)))
	registryConnections.WithLabelValues("pull_imported").Set(float64(len(snapshot.PullImported)))
}

// SiteConfig is one entry of the pre-configured reconciliation mapping
//.
type SiteConfig struct {
	Site            types.SiteId
	ReceiverPort    uint16
	Credentials     Credentials
	RootCert        []byte
	EnableAutoUpdate bool
	Labels          map[string]string
}

// Orchestrator drives registration for a whole configured fleet. The
// `cmk-agent-ctl register` CLI mode does not use it; that mode calls
// Client directly for a single site.
type Orchestrator struct {
	Client   *Client
	Registry *registry.Registry
	Log      logrus.FieldLogger

	// DiscoverPort is called when a SiteConfig omits ReceiverPort.
	DiscoverPort func(site types.SiteId) (uint16, error)
	// QueryStatus calls the remote's registration_status_v2 to check
	// whether a previously-registered connection is still recognized.
	QueryStatus func(ctx context.Context, site types.SiteId, conn types.TrustedConnectionWithRemote) (registered bool, err error)
	// UpdaterPath is the colocated cmk-update-agent binary; defaults to
	// a sibling of the current executable.
	UpdaterPath string
}

// Reconcile implements pre-configured reconciliation: it
// registers or refreshes every configured site, optionally prunes
// connections absent from the mapping, and saves once at the end. A
// failure on one site is logged and does not abort the others.
func (o *Orchestrator) Reconcile(ctx context.Context, configured []SiteConfig, keepExistingConnections bool) error {
	log := o.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	wanted := make(map[types.SiteId]bool, len(configured))
	for _, cfg := range configured {
		wanted[cfg.Site] = true
		if err := o.reconcileSite(ctx, cfg, log); err != nil {
			log.WithError(err).Errorf("registration: failed to reconcile site %s", cfg.Site)
		}
	}

	if !keepExistingConnections {
		for site := range o.Registry.Snapshot().Push {
			if !wanted[site] {
				o.Registry.DeleteStandardConnection(site)
			}
		}
		for site := range o.Registry.Snapshot().Pull {
			if !wanted[site] {
				o.Registry.DeleteStandardConnection(site)
			}
		}
		o.Registry.ClearImported()
	}

	err := trace.Wrap(o.Registry.Save())
	observeRegistryConnections(o.Registry.Snapshot())
	return err
}

func (o *Orchestrator) reconcileSite(ctx context.Context, cfg SiteConfig, log logrus.FieldLogger) error {
	port := cfg.ReceiverPort
	if port == 0 {
		discovered, err := o.DiscoverPort(cfg.Site)
		if err != nil {
			registrationAttemptsTotal.WithLabelValues("failure").Inc()
			return trace.Wrap(err, "discovering receiver port for %s", cfg.Site)
		}
		port = discovered
	}

	snapshot := o.Registry.Snapshot()
	var existing types.TrustedConnectionWithRemote
	var found bool
	mode := types.Push
	if conn, ok := snapshot.Push[cfg.Site]; ok {
		existing, found = conn, true
	} else if conn, ok := snapshot.Pull[cfg.Site]; ok {
		existing, mode, found = conn, types.Pull, true
	}

	if found {
		existing.ReceiverPort = port
		o.Registry.RegisterConnection(mode, cfg.Site, existing)

		if o.QueryStatus != nil {
			registered, err := o.QueryStatus(ctx, cfg.Site, existing)
			if err == nil && registered {
				return nil
			}
		}
	}

	siteURL := fmt.Sprintf("https://%s:%d", cfg.Site.Server, port)
	conn, connMode, err := o.Client.RegisterNew(ctx, siteURL, cfg.RootCert, cfg.Credentials, cfg.Labels)
	if err != nil {
		registrationAttemptsTotal.WithLabelValues("failure").Inc()
		return trace.Wrap(err, "registering new host at %s", siteURL)
	}
	registrationAttemptsTotal.WithLabelValues("success").Inc()
	o.Registry.RegisterConnection(connMode, cfg.Site, types.TrustedConnectionWithRemote{
		TrustedConnection: conn,
		ReceiverPort:      port,
	})

	if cfg.EnableAutoUpdate && cfg.Credentials.Username != "" && cfg.Credentials.Password != "" {
		if err := o.invokeUpdater(cfg); err != nil {
			log.WithError(err).Warnf("registration: automatic-update registration failed for %s", cfg.Site)
		}
	}

	return nil
}

// invokeUpdater implements updater subprocess contract: a
// colocated `cmk-update-agent` binary (prefixed with `updater` on
// Windows), stdin /dev/null, a one-shot 0600 password file.
func (o *Orchestrator) invokeUpdater(cfg SiteConfig) error {
	path := o.UpdaterPath
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return trace.Wrap(err)
		}
		path = filepath.Join(filepath.Dir(exe), "cmk-update-agent")
	}

	pwFile, err := os.CreateTemp("", "cmk-update-agent-password-*")
	if err != nil {
		return trace.Wrap(err)
	}
	pwPath := pwFile.Name()
	defer os.Remove(pwPath)

	if err := pwFile.Chmod(0o600); err != nil {
		pwFile.Close()
		return trace.Wrap(err)
	}
	if _, err := pwFile.WriteString(cfg.Credentials.Password); err != nil {
		pwFile.Close()
		return trace.Wrap(err)
	}
	if err := pwFile.Close(); err != nil {
		return trace.Wrap(err)
	}

	args := []string{
		"register",
		"-s", cfg.Site.Server,
		"-i", cfg.Site.Site,
		"-H", hostnameOrEmpty(),
		"-U", cfg.Credentials.Username,
		"-p", "https",
		"--password-file", pwPath,
	}
	if runtime.GOOS == "windows" {
		args = append([]string{"updater"}, args...)
	}

	cmd := exec.Command(path, args...)
	cmd.Stdin = nil
	devnull, err := os.Open(os.DevNull)
	if err == nil {
		cmd.Stdin = devnull
		defer devnull.Close()
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return trace.Wrap(err, "cmk-update-agent failed: %s", stderr.String())
	}
	return nil
}

func hostnameOrEmpty() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}
