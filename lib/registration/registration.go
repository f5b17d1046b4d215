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

// Package registration implements the registration handshakes that
// exchange a fresh key pair and CSR for a site-signed certificate,
// persisted into the connection registry: generate a key pair, build a
// request, call the remote, build a TrustedConnection from the
// response, with a separate token/credential resolution step for the
// per-site bearer-credential handshake.
package registration

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/checkmk/agent-collectors/api/types"
)

// keyBits is the default RSA key strength used for generated identities.
const keyBits = 2048

// pollInterval is the two-phase registration poll period.
const pollInterval = 20 * time.Second

// Credentials resolves the credential-resolution step: a configured
// password, a prompted password, or a one-time token. Username/Password
// and Token are mutually exclusive.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// TrustDecision resolves the server-trust-resolution step.
type TrustDecision struct {
	// RootCert, when non-empty, is used outright, overriding BlindTrust
	// with a warning.
	RootCert []byte
	// BlindTrust proceeds without any interactive confirmation.
	BlindTrust bool
}

// Prompter abstracts the interactive "do you trust this certificate"
// and password prompts so tests can supply canned answers instead of a
// real tty.
type Prompter interface {
	ConfirmCertificate(issuer, subject string, notBefore, notAfter time.Time) bool
	PasswordPrompt() (string, error)
}

// StdioPrompter implements Prompter against the process's own stdin,
// the default outside of tests.
type StdioPrompter struct{}

func (StdioPrompter) ConfirmCertificate(issuer, subject string, notBefore, notAfter time.Time) bool {
	fmt.Printf("Server certificate details:\n  issuer:  %s\n  subject: %s\n  valid:   %s - %s\nDo you want to trust it? [y/N] ",
		issuer, subject, notBefore.Format(time.RFC3339), notAfter.Format(time.RFC3339))
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	return line == "y" || line == "Y"
}

func (StdioPrompter) PasswordPrompt() (string, error) {
	fmt.Print("Password: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", trace.Wrap(err)
	}
	return strings.TrimSpace(line), nil
}

// Client drives the registration handshakes against a single site's
// receiver.
type Client struct {
	HTTP     *http.Client
	Prompter Prompter
	Log      logrus.FieldLogger
}

// NewClient returns a Client with sane defaults: a small typed wrapper
// around *http.Client instead of passing one around bare.
func NewClient(log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Prompter: StdioPrompter{},
		Log:      log,
	}
}

// generatedIdentity is the pre-registration artifact: a fresh UUID, an
// RSA keypair, and a CSR whose CN is the UUID's string form.
type generatedIdentity struct {
	id      uuid.UUID
	keyPEM  []byte
	csrPEM  []byte
}

func generateIdentity() (*generatedIdentity, error) {
	id := uuid.New()

	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, trace.Wrap(err, "generating key pair")
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	template := &x509.CertificateRequest{
		Subject: pkix.Name{CommonName: id.String()},
	}
	csrDER, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		return nil, trace.Wrap(err, "creating certificate request")
	}
	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})

	return &generatedIdentity{id: id, keyPEM: keyPEM, csrPEM: csrPEM}, nil
}

// ResolveTrust implements step 3. siteURL is used only to fetch
// the peer certificate for interactive display; it is never dialed
// again afterward.
func (c *Client) ResolveTrust(siteURL string, decision TrustDecision) ([]byte, error) {
	if len(decision.RootCert) > 0 {
		if decision.BlindTrust {
			c.Log.Warn("registration: a root certificate is configured; ignoring blind-trust")
		}
		return decision.RootCert, nil
	}
	if decision.BlindTrust {
		return nil, nil
	}

	cert, err := fetchPeerCertificate(siteURL)
	if err != nil {
		return nil, trace.Wrap(err, "fetching server certificate")
	}
	if !c.Prompter.ConfirmCertificate(cert.Issuer.String(), cert.Subject.String(), cert.NotBefore, cert.NotAfter) {
		return nil, trace.AccessDenied("server certificate was not trusted interactively")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}), nil
}

func fetchPeerCertificate(siteURL string) (*x509.Certificate, error) {
	conn, err := tls.Dial("tcp", siteURL, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	defer conn.Close()
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, trace.NotFound("no peer certificate presented")
	}
	return state.PeerCertificates[0], nil
}

// ResolveCredentials implements step 4.
func (c *Client) ResolveCredentials(cfg Credentials) (Credentials, error) {
	if cfg.Token != "" {
		if cfg.Username != "" || cfg.Password != "" {
			return Credentials{}, trace.BadParameter("a one-time token and username/password are mutually exclusive")
		}
		return cfg, nil
	}
	if cfg.Password != "" {
		return cfg, nil
	}
	pw, err := c.Prompter.PasswordPrompt()
	if err != nil {
		return Credentials{}, trace.Wrap(err)
	}
	cfg.Password = pw
	return cfg, nil
}

// existingHostResponse is the wire shape of register_existing's single
// round trip.
type existingHostResponse struct {
	RootCert  string              `json:"root_cert"`
	AgentCert string              `json:"agent_cert"`
	Mode      types.ConnectionMode `json:"connection_mode"`
}

// RegisterExisting implements direct (existing-host) mode: one
// round trip to the site's receiver.
func (c *Client) RegisterExisting(ctx context.Context, siteURL string, rootCert []byte, creds Credentials) (types.TrustedConnection, types.ConnectionMode, error) {
	gen, err := generateIdentity()
	if err != nil {
		return types.TrustedConnection{}, 0, trace.Wrap(err)
	}

	reqBody, err := json.Marshal(map[string]string{
		"uuid":     gen.id.String(),
		"csr":      string(gen.csrPEM),
		"username": creds.Username,
		"password": creds.Password,
		"token":    creds.Token,
	})
	if err != nil {
		return types.TrustedConnection{}, 0, trace.Wrap(err)
	}

	resp, err := c.post(ctx, siteURL+"/register_existing", rootCert, reqBody)
	if err != nil {
		return types.TrustedConnection{}, 0, trace.Wrap(err)
	}
	defer resp.Body.Close()

	var parsed existingHostResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.TrustedConnection{}, 0, trace.Wrap(err, "decoding register_existing response")
	}

	root := rootCert
	if root == nil {
		root = []byte(parsed.RootCert)
	}

	return types.TrustedConnection{
		UUID:        gen.id,
		PrivateKey:  gen.keyPEM,
		Certificate: []byte(parsed.AgentCert),
		RootCert:    root,
	}, parsed.Mode, nil
}

// newHostPhase is the register_new_ongoing poll state.
type newHostPhase string

const (
	phaseInProgress newHostPhase = "InProgress"
	phaseDeclined   newHostPhase = "Declined"
	phaseSuccess    newHostPhase = "Success"
)

type ongoingResponse struct {
	Phase     newHostPhase        `json:"phase"`
	Reason    string               `json:"reason,omitempty"`
	AgentCert string               `json:"agent_cert,omitempty"`
	Mode      types.ConnectionMode `json:"connection_mode,omitempty"`
}

// RegisterNew implements direct (new-host, two-phase) mode:
// register_new followed by polling register_new_ongoing every 20
// seconds until Declined or Success.
func (c *Client) RegisterNew(ctx context.Context, siteURL string, rootCert []byte, creds Credentials, labels map[string]string) (types.TrustedConnection, types.ConnectionMode, error) {
	gen, err := generateIdentity()
	if err != nil {
		return types.TrustedConnection{}, 0, trace.Wrap(err)
	}

	reqBody, err := json.Marshal(map[string]any{
		"uuid":     gen.id.String(),
		"csr":      string(gen.csrPEM),
		"username": creds.Username,
		"password": creds.Password,
		"token":    creds.Token,
		"labels":   labels,
	})
	if err != nil {
		return types.TrustedConnection{}, 0, trace.Wrap(err)
	}

	resp, err := c.post(ctx, siteURL+"/register_new", rootCert, reqBody)
	if err != nil {
		return types.TrustedConnection{}, 0, trace.Wrap(err)
	}
	var phase1 struct {
		RootCert string `json:"root_cert"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&phase1)
	resp.Body.Close()
	if decodeErr != nil {
		return types.TrustedConnection{}, 0, trace.Wrap(decodeErr, "decoding register_new response")
	}

	root := rootCert
	if root == nil {
		root = []byte(phase1.RootCert)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		pollBody, _ := json.Marshal(map[string]string{"uuid": gen.id.String()})
		pollResp, err := c.post(ctx, siteURL+"/register_new_ongoing", root, pollBody)
		if err != nil {
			return types.TrustedConnection{}, 0, trace.Wrap(err)
		}
		var ongoing ongoingResponse
		decodeErr := json.NewDecoder(pollResp.Body).Decode(&ongoing)
		pollResp.Body.Close()
		if decodeErr != nil {
			return types.TrustedConnection{}, 0, trace.Wrap(decodeErr, "decoding register_new_ongoing response")
		}

		switch ongoing.Phase {
		case phaseDeclined:
			return types.TrustedConnection{}, 0, trace.AccessDenied("registration declined: %s", ongoing.Reason)
		case phaseSuccess:
			return types.TrustedConnection{
				UUID:        gen.id,
				PrivateKey:  gen.keyPEM,
				Certificate: []byte(ongoing.AgentCert),
				RootCert:    root,
			}, ongoing.Mode, nil
		case phaseInProgress:
			// fall through to the next poll tick
		}

		select {
		case <-ctx.Done():
			return types.TrustedConnection{}, 0, trace.Wrap(ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, url string, rootCert []byte, body []byte) (*http.Response, error) {
	httpClient := c.HTTP
	if len(rootCert) > 0 {
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(rootCert)
		transport := &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}
		httpClient = &http.Client{Timeout: c.HTTP.Timeout, Transport: transport}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, trace.BadParameter("registration request to %s failed: %s: %s", url, resp.Status, string(msg))
	}
	return resp, nil
}
