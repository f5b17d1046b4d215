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

// Command cmk-agent-ctl is the agent controller's CLI: it drives the
// registration handshakes against a Checkmk site and manages the
// connection registry. Its subcommand layout is one kingpin command
// per verb with a shared set of global flags.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gravitational/kingpin"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/checkmk/agent-collectors/api/types"
	"github.com/checkmk/agent-collectors/internal/logging"
	"github.com/checkmk/agent-collectors/lib/registration"
	"github.com/checkmk/agent-collectors/lib/registry"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "cmk-agent-ctl: "+err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	app := kingpin.New("cmk-agent-ctl", "Checkmk agent controller")

	var (
		registryPath string
		debug        bool
	)
	app.Flag("registry", "Path to the connection registry file").Default("/etc/check_mk/registered_connections.json").StringVar(&registryPath)
	app.Flag("debug", "Enable verbose logging to stderr").Short('d').BoolVar(&debug)

	registerCmd := app.Command("register", "Register this host with a Checkmk site")
	var (
		server       string
		site         string
		hostName     string
		username     string
		password     string
		token        string
		rootCertPath string
		blindTrust   bool
		newHost      bool
		pullMode     bool
		timeout      time.Duration
	)
	registerCmd.Flag("server", "Site server hostname").Required().StringVar(&server)
	registerCmd.Flag("site", "Site name").Required().StringVar(&site)
	registerCmd.Flag("hostname", "Host name sent as the cmk/agent_hostname label (--new-host only)").StringVar(&hostName)
	registerCmd.Flag("user", "Site username").StringVar(&username)
	registerCmd.Flag("password", "Site password").StringVar(&password)
	registerCmd.Flag("token", "One-time registration token").StringVar(&token)
	registerCmd.Flag("root-cert", "Path to a PEM root certificate to trust").StringVar(&rootCertPath)
	registerCmd.Flag("trust-cert", "Trust the site's certificate without prompting").BoolVar(&blindTrust)
	registerCmd.Flag("new-host", "Use the two-phase (pending-approval) handshake").BoolVar(&newHost)
	registerCmd.Flag("pull", "Register for pull rather than push").BoolVar(&pullMode)
	registerCmd.Flag("timeout", "Handshake timeout").Default("2m").DurationVar(&timeout)

	statusCmd := app.Command("status", "Print the registry's current connections")
	var statusJSON bool
	statusCmd.Flag("json", "Emit machine-readable JSON").BoolVar(&statusJSON)

	deleteCmd := app.Command("delete", "Remove a single site connection")
	var deleteSite string
	deleteCmd.Flag("site", "Site id, server/site").Required().StringVar(&deleteSite)

	deleteAllCmd := app.Command("delete-all", "Remove every registered connection")

	importCmd := app.Command("import", "Import an anonymous (proxy) connection from stdin as JSON")

	cmd, err := app.Parse(args)
	if err != nil {
		return trace.Wrap(err)
	}

	verbosity := 0
	if debug {
		verbosity = 2
	}
	logging.Init(logging.ForCLI, logging.LevelFromEnv(verbosity))
	log := logrus.WithField("component", "cmk-agent-ctl")

	reg, err := registry.FromFile(registryPath)
	if err != nil {
		return trace.Wrap(err, "loading registry")
	}

	switch cmd {
	case registerCmd.FullCommand():
		return doRegister(reg, log, registerOpts{
			server: server, site: site, hostName: hostName,
			username: username, password: password, token: token,
			rootCertPath: rootCertPath, blindTrust: blindTrust,
			newHost: newHost, pullMode: pullMode, timeout: timeout,
		})
	case statusCmd.FullCommand():
		return doStatus(reg, statusJSON)
	case deleteCmd.FullCommand():
		return doDelete(reg, deleteSite)
	case deleteAllCmd.FullCommand():
		reg.Clear()
		reg.ClearImported()
		return trace.Wrap(reg.Save())
	case importCmd.FullCommand():
		return doImport(reg)
	}
	return trace.BadParameter("unrecognized command")
}

type registerOpts struct {
	server, site, hostName string
	username, password, token string
	rootCertPath            string
	blindTrust              bool
	newHost                 bool
	pullMode                bool
	timeout                 time.Duration
}

func doRegister(reg *registry.Registry, log logrus.FieldLogger, opts registerOpts) error {
	siteID := types.SiteId{Server: opts.server, Site: opts.site}
	siteURL := fmt.Sprintf("https://%s", opts.server)
	dialAddr := opts.server
	if !hasPort(dialAddr) {
		dialAddr = opts.server + ":443"
	}

	client := registration.NewClient(log)

	var rootCert []byte
	if opts.rootCertPath != "" {
		data, err := os.ReadFile(opts.rootCertPath)
		if err != nil {
			return trace.Wrap(err, "reading --root-cert")
		}
		rootCert = data
	}
	trusted, err := client.ResolveTrust(dialAddr, registration.TrustDecision{RootCert: rootCert, BlindTrust: opts.blindTrust})
	if err != nil {
		return trace.Wrap(err, "establishing server trust")
	}

	creds, err := client.ResolveCredentials(registration.Credentials{Username: opts.username, Password: opts.password, Token: opts.token})
	if err != nil {
		return trace.Wrap(err, "resolving credentials")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	var (
		conn types.TrustedConnection
		mode types.ConnectionMode
	)
	if opts.newHost {
		conn, mode, err = client.RegisterNew(ctx, siteURL, trusted, creds, map[string]string{"cmk/agent_hostname": opts.hostName})
	} else {
		conn, mode, err = client.RegisterExisting(ctx, siteURL, trusted, creds)
	}
	if err != nil {
		return trace.Wrap(err, "registering with %s", siteID)
	}
	if opts.pullMode {
		mode = types.Pull
	}

	reg.RegisterConnection(mode, siteID, types.TrustedConnectionWithRemote{TrustedConnection: conn})
	if err := reg.Save(); err != nil {
		return trace.Wrap(err, "saving registry")
	}

	fmt.Printf("Registered %s as %s (uuid %s)\n", siteID, mode, conn.UUID)
	return nil
}

// statusEntry is the redacted, JSON-friendly view of one registry
// connection printed by `status`: uuid/mode/remote only, no key
// or certificate material.
type statusEntry struct {
	Site         string `json:"site"`
	Mode         string `json:"mode"`
	UUID         string `json:"uuid"`
	ReceiverPort uint16 `json:"receiver_port,omitempty"`
}

func doStatus(reg *registry.Registry, asJSON bool) error {
	snapshot := reg.Snapshot()

	var entries []statusEntry
	for site, conn := range snapshot.Push {
		entries = append(entries, statusEntry{Site: site.String(), Mode: types.Push.String(), UUID: conn.UUID.String(), ReceiverPort: conn.ReceiverPort})
	}
	for site, conn := range snapshot.Pull {
		entries = append(entries, statusEntry{Site: site.String(), Mode: types.Pull.String(), UUID: conn.UUID.String(), ReceiverPort: conn.ReceiverPort})
	}
	for _, conn := range snapshot.PullImported {
		entries = append(entries, statusEntry{Mode: "imported", UUID: conn.UUID.String()})
	}

	if asJSON {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return trace.Wrap(err)
		}
		fmt.Println(string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("No connections registered.")
		return nil
	}
	for _, e := range entries {
		if e.Site != "" {
			fmt.Printf("%s  %-6s  %s\n", e.Site, e.Mode, e.UUID)
		} else {
			fmt.Printf("%-6s  %s\n", e.Mode, e.UUID)
		}
	}
	return nil
}

func doDelete(reg *registry.Registry, siteStr string) error {
	siteID, err := types.ParseSiteId(siteStr)
	if err != nil {
		return trace.Wrap(err)
	}
	if !reg.DeleteStandardConnection(siteID) {
		return trace.NotFound("no connection registered for %s", siteID)
	}
	return trace.Wrap(reg.Save())
}

// hasPort reports whether s already carries an explicit ":port" suffix,
// so --server values like "site.example.com:8000" aren't clobbered by
// the default-443 fallback used for the trust-establishment dial.
func hasPort(s string) bool {
	for i := len(s) - 1; i >= 0 && s[i] != ']'; i-- {
		if s[i] == ':' {
			return true
		}
	}
	return false
}

func doImport(reg *registry.Registry) error {
	var conn types.TrustedConnection
	if err := json.NewDecoder(os.Stdin).Decode(&conn); err != nil {
		return trace.Wrap(err, "decoding connection bundle from stdin")
	}
	reg.RegisterImportedConnection(conn)
	return trace.Wrap(reg.Save())
}
