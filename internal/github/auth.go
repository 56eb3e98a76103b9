// MIT License
//
// Copyright (c) 2025 Mike Lane
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/golang-jwt/jwt/v4"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// installationIdleTTL is how long an unused installation transport is cached
const installationIdleTTL = time.Hour

// AppClientFactory creates installation-scoped clients for a GitHub App.
// Each installation gets one ghinstallation transport whose token is
// shared by all clients built for it and refreshed before it expires.
type AppClientFactory struct {
	apps   *ghinstallation.AppsTransport
	apiURL string
	now    func() time.Time

	mu            sync.Mutex
	installations map[int64]*installationEntry
}

type installationEntry struct {
	transport *ghinstallation.Transport
	lastUsed  time.Time
}

// NewAppClientFactory creates a factory for the App identified by appID.
// transport is the base transport for every request; nil means
// http.DefaultTransport.
func NewAppClientFactory(appID int64, privateKeyPEM []byte, apiURL string, transport http.RoundTripper) (*AppClientFactory, error) {
	if appID <= 0 {
		return nil, errors.New("github app ID must be positive")
	}

	// Accepts PKCS1 keys as GitHub issues them, and PKCS8
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing github app private key: %w", err)
	}

	if transport == nil {
		transport = http.DefaultTransport
	}

	apps := ghinstallation.NewAppsTransportFromPrivateKey(transport, appID, privateKey)
	if apiURL != "" {
		if _, err := parseAPIURL(apiURL); err != nil {
			return nil, err
		}
		apps.BaseURL = strings.TrimSuffix(apiURL, "/")
	}

	return &AppClientFactory{
		apps:          apps,
		apiURL:        apiURL,
		now:           time.Now,
		installations: make(map[int64]*installationEntry),
	}, nil
}

// ForInstallation returns a client authenticated as installationID.
// The installation token is fetched lazily on the first request.
func (f *AppClientFactory) ForInstallation(ctx context.Context, installationID int64) (Client, error) {
	if installationID <= 0 {
		return nil, fmt.Errorf("invalid installation ID %d", installationID)
	}

	httpClient := &http.Client{Transport: f.installationTransport(installationID)}

	log.FromContext(ctx).V(1).Info("Built installation client", "installation", installationID)
	return NewClient(httpClient, f.apiURL)
}

// installationTransport returns the cached transport for an installation, creating it on first use
func (f *AppClientFactory) installationTransport(installationID int64) *ghinstallation.Transport {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.installations[installationID]
	if !ok {
		transport := ghinstallation.NewFromAppsTransport(f.apps, installationID)
		transport.BaseURL = f.apps.BaseURL
		entry = &installationEntry{transport: transport}
		f.installations[installationID] = entry
	}
	entry.lastUsed = f.now()

	return entry.transport
}

// Sweep drops transports for installations idle for over an hour and
// returns how many were removed.
func (f *AppClientFactory) Sweep(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := 0
	for id, entry := range f.installations {
		if now.Sub(entry.lastUsed) > installationIdleTTL {
			delete(f.installations, id)
			removed++
		}
	}
	return removed
}
