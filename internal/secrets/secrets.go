// Package secrets resolves backend credentials. Credentials of the form
// projects/PROJECT/secrets/NAME[/versions/V] (or a bare secret name prefixed
// with sm://) are fetched from GCP Secret Manager; anything else is treated
// as a literal key.
package secrets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// Fetcher fetches secret material by resource path.
type Fetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
	Close() error
}

// Client wraps the GCP Secret Manager client.
type Client struct {
	client    *secretmanager.Client
	projectID string
}

// NewClient creates a Secret Manager client. The project ID comes from the
// environment or, on GCP, from the metadata server.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	projectID, err := getProjectID(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to get project ID: %w", err)
	}

	return &Client{client: client, projectID: projectID}, nil
}

// IsSecretRef reports whether a credential value must be resolved through
// Secret Manager rather than used literally.
func IsSecretRef(credential string) bool {
	return strings.HasPrefix(credential, "projects/") || strings.HasPrefix(credential, "sm://")
}

// Resolve returns the bearer key for a credential value: fetched when it is
// a secret reference, literal otherwise. A nil fetcher with a secret
// reference is an error rather than a silent empty key.
func Resolve(ctx context.Context, fetcher Fetcher, credential string) (string, error) {
	if !IsSecretRef(credential) {
		return credential, nil
	}
	if fetcher == nil {
		return "", fmt.Errorf("credential %q requires Secret Manager but no client is configured", credential)
	}
	value, err := fetcher.FetchSecret(ctx, strings.TrimPrefix(credential, "sm://"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve credential: %w", err)
	}
	return strings.TrimSpace(value), nil
}

// FetchSecret retrieves a secret. secretPath can be:
//   - projects/PROJECT/secrets/NAME/versions/VERSION
//   - projects/PROJECT/secrets/NAME (defaults to latest)
//   - NAME (uses the discovered project ID)
func (c *Client) FetchSecret(ctx context.Context, secretPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req := &secretmanagerpb.AccessSecretVersionRequest{
		Name: c.normalizeSecretPath(secretPath),
	}
	result, err := c.client.AccessSecretVersion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to access secret version: %w", err)
	}
	return string(result.Payload.Data), nil
}

// Close closes the underlying client.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) normalizeSecretPath(secretPath string) string {
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/versions/") {
		return secretPath
	}
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/secrets/") {
		return secretPath + "/versions/latest"
	}
	secretName := path.Base(secretPath)
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.projectID, secretName)
}

// getProjectID retrieves the GCP project ID from environment variables or
// the metadata server.
func getProjectID(ctx context.Context) (string, error) {
	for _, key := range []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"} {
		if projectID := os.Getenv(key); projectID != "" {
			return projectID, nil
		}
	}
	return getProjectIDFromMetadata(ctx)
}

func getProjectIDFromMetadata(ctx context.Context) (string, error) {
	const metadataURL = "http://metadata.google.internal/computeMetadata/v1/project/project-id"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create metadata request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch project ID from metadata server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metadata response: %w", err)
	}
	projectID := strings.TrimSpace(string(body))
	if projectID == "" {
		return "", fmt.Errorf("empty project ID from metadata server")
	}
	return projectID, nil
}
