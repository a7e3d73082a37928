package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"rfq-realtime/config"
	"rfq-realtime/core"
)

// Verifier resolves a credential to an identity. The production
// implementation calls the REST backend; tests substitute fakes.
type Verifier interface {
	// Verify returns the identity for the credential, or nil when the
	// credential is invalid. Transport errors are returned as errors and
	// treated by callers exactly like an invalid verdict.
	Verify(ctx context.Context, token string, userType core.UserType) (*core.User, error)
}

type verifyRequest struct {
	Token    string        `json:"token"`
	UserType core.UserType `json:"userType"`
}

type verifyResponse struct {
	Valid bool       `json:"valid"`
	User  *core.User `json:"user"`
}

// httpVerifier calls the backend's socket token verification endpoint with a
// fixed per-request timeout.
type httpVerifier struct {
	baseURL string
	client  *http.Client
}

// NewVerifier builds the HTTP verifier from the backend configuration.
func NewVerifier(cfg config.Backend) *httpVerifier {
	return &httpVerifier{
		baseURL: cfg.APIURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (v *httpVerifier) Verify(ctx context.Context, token string, userType core.UserType) (*core.User, error) {
	body, err := json.Marshal(verifyRequest{Token: token, UserType: userType})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.baseURL+"/api/v1/socket/verify-token", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verification endpoint returned %d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"valid":    out.Valid,
		"userType": userType,
	}).Debug("Token verification response")

	if !out.Valid || out.User == nil {
		return nil, nil
	}
	return out.User, nil
}
