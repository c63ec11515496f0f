package earthengine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
)

// Scopes requested for the service account.
var Scopes = []string{
	"https://www.googleapis.com/auth/earthengine",
	"https://www.googleapis.com/auth/cloud-platform",
}

// ServiceAccount is the subset of a key file the server reports on.
type ServiceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

// LoadCredentials reads a service-account key either inline or from a file path.
// Inline JSON wins when both are set. It returns ErrNoCredentials when neither is.
func LoadCredentials(ctx context.Context, inline, path string) (*google.Credentials, *ServiceAccount, error) {
	var data []byte
	switch {
	case strings.TrimSpace(inline) != "":
		data = []byte(inline)
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("reading service account key: %w", err)
		}
		data = b
	default:
		return nil, nil, ErrNoCredentials
	}

	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, nil, fmt.Errorf("parsing service account key: %w", err)
	}
	if sa.Type != "service_account" || sa.ClientEmail == "" {
		return nil, nil, fmt.Errorf("credential blob is not a service account key (type %q)", sa.Type)
	}

	creds, err := google.CredentialsFromJSONWithParams(ctx, data, google.CredentialsParams{Scopes: Scopes})
	if err != nil {
		return nil, nil, fmt.Errorf("loading service account key: %w", err)
	}
	return creds, &sa, nil
}
