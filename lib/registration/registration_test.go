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
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type canned struct {
	password string
}

func (canned) ConfirmCertificate(string, string, time.Time, time.Time) bool { return true }
func (c canned) PasswordPrompt() (string, error)                           { return c.password, nil }

func TestResolveCredentialsTokenExcludesPassword(t *testing.T) {
	client := &Client{Log: nil}
	_, err := client.ResolveCredentials(Credentials{Token: "tok", Password: "pw"})
	assert.Error(t, err)
}

func TestResolveCredentialsPasswordPassesThrough(t *testing.T) {
	client := &Client{Log: nil}
	got, err := client.ResolveCredentials(Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "pw", got.Password)
}

func TestResolveCredentialsPromptsWhenNoPassword(t *testing.T) {
	client := &Client{Prompter: canned{password: "prompted"}}
	got, err := client.ResolveCredentials(Credentials{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "prompted", got.Password)
}

func TestGenerateIdentityProducesValidKeyAndCSR(t *testing.T) {
	id, err := generateIdentity()
	require.NoError(t, err)

	keyBlock, _ := pem.Decode(id.keyPEM)
	require.NotNil(t, keyBlock)
	_, err = x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	require.NoError(t, err)

	csrBlock, _ := pem.Decode(id.csrPEM)
	require.NotNil(t, csrBlock)
	csr, err := x509.ParseCertificateRequest(csrBlock.Bytes)
	require.NoError(t, err)
	assert.Equal(t, id.id.String(), csr.Subject.CommonName)
}
