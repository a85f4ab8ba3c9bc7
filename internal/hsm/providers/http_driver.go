// Package providers implements the four HSM driver backends named in
// §4.13 as thin REST clients. No cloud KMS SDK appears anywhere in the
// reference pack, so each driver speaks a minimal signing REST contract
// over net/http rather than vendoring an unavailable SDK (see DESIGN.md).
package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sawpanic/vaultrun/internal/apperrors"
	"github.com/sawpanic/vaultrun/internal/config"
)

// httpSignDriver is the shared REST-signing implementation behind all
// four provider constructors; they differ only in base URL, provider
// tag, and bearer header convention.
type httpSignDriver struct {
	provider   config.HSMProvider
	baseURL    string
	authHeader string
	authValue  string
	httpClient *http.Client
}

func newHTTPSignDriver(provider config.HSMProvider, baseURL, authHeader, authValue string) *httpSignDriver {
	return &httpSignDriver{
		provider:   provider,
		baseURL:    baseURL,
		authHeader: authHeader,
		authValue:  authValue,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Provider reports which HSM backend this driver talks to.
func (d *httpSignDriver) Provider() config.HSMProvider { return d.provider }

type signRequest struct {
	KeyID           string `json:"key_id"`
	MessageB64      string `json:"message_b64"`
}

type signResponse struct {
	SignatureB64 string `json:"signature_b64"`
	Error        string `json:"error"`
}

// Sign POSTs the message to the provider's /sign endpoint and decodes the
// returned base64 signature. Network failures and 5xx responses return an
// "hsm connection" error; a 4xx response or a reply carrying an error field
// returns an "hsm signing rejected" error. Neither wraps hsm.ErrConnection
// or hsm.ErrSigning.
func (d *httpSignDriver) Sign(ctx context.Context, keyID string, message []byte) ([]byte, error) {
	body, err := json.Marshal(signRequest{KeyID: keyID, MessageB64: base64.StdEncoding.EncodeToString(message)})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", apperrors.ErrFatal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/sign", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", apperrors.ErrFatal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.authHeader != "" {
		req.Header.Set(d.authHeader, d.authValue)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hsm connection to %s: %w", d.provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("hsm connection to %s: status %d", d.provider, resp.StatusCode)
	}

	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("hsm signing response decode: %w", err)
	}
	if resp.StatusCode >= 400 || out.Error != "" {
		return nil, fmt.Errorf("hsm signing rejected: %s", out.Error)
	}

	sig, err := base64.StdEncoding.DecodeString(out.SignatureB64)
	if err != nil {
		return nil, fmt.Errorf("hsm signing response: invalid signature encoding: %w", err)
	}
	return sig, nil
}

// NewAWSKMS constructs a driver backed by AWS KMS's signing REST surface.
func NewAWSKMS(baseURL, apiKey string) *httpSignDriver {
	return newHTTPSignDriver(config.HSMAWSKMS, baseURL, "Authorization", "Bearer "+apiKey)
}

// NewAzureKeyVault constructs a driver backed by Azure Key Vault's
// signing REST surface.
func NewAzureKeyVault(baseURL, apiKey string) *httpSignDriver {
	return newHTTPSignDriver(config.HSMAzureKeyVault, baseURL, "Authorization", "Bearer "+apiKey)
}

// NewGoogleKMS constructs a driver backed by Google Cloud KMS's signing
// REST surface.
func NewGoogleKMS(baseURL, apiKey string) *httpSignDriver {
	return newHTTPSignDriver(config.HSMGoogleKMS, baseURL, "X-Goog-Api-Key", apiKey)
}

// NewHardwareHSM constructs a driver backed by an on-prem hardware HSM's
// local signing gateway.
func NewHardwareHSM(baseURL, apiKey string) *httpSignDriver {
	return newHTTPSignDriver(config.HSMHardware, baseURL, "X-HSM-Token", apiKey)
}
