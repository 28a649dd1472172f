package gcp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// metadataServerURL is the root of the GCE metadata server.
var metadataServerURL = "http://metadata.google.internal/computeMetadata/v1"

const (
	// probeTimeout keeps IsRunningOnGCP from stalling startup elsewhere.
	probeTimeout         = 200 * time.Millisecond
	metadataFieldTimeout = 2 * time.Second
)

// projectEnvVars are checked in order before asking the metadata server.
var projectEnvVars = []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"}

// IsRunningOnGCP reports whether the metadata server answers.
func IsRunningOnGCP() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	resp, err := metadataGet(ctx, "", probeTimeout)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// getInstanceMetadataField fetches one field relative to the metadata root,
// e.g. "instance/name".
func getInstanceMetadataField(ctx context.Context, field string) (string, error) {
	resp, err := metadataGet(ctx, field, metadataFieldTimeout)
	if err != nil {
		return "", fmt.Errorf("failed to fetch metadata field %s: %w", field, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata server returned status %d for field %s", resp.StatusCode, field)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metadata response: %w", err)
	}

	value := strings.TrimSpace(string(body))
	if value == "" {
		return "", fmt.Errorf("empty value for metadata field %s", field)
	}
	return value, nil
}

func metadataGet(ctx context.Context, field string, timeout time.Duration) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataServerURL+"/"+field, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: timeout}
	return client.Do(req)
}

// getProjectID returns the project from the environment, falling back to the
// metadata server.
func getProjectID(ctx context.Context) (string, error) {
	for _, name := range projectEnvVars {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	return getInstanceMetadataField(ctx, "project/project-id")
}

// instanceLocation discovers the project, zone and name of this instance.
func instanceLocation(ctx context.Context) (project, zone, instance string, err error) {
	project, err = getInstanceMetadataField(ctx, "project/project-id")
	if err != nil {
		return "", "", "", fmt.Errorf("failed to get project ID: %w", err)
	}

	zoneRaw, err := getInstanceMetadataField(ctx, "instance/zone")
	if err != nil {
		return "", "", "", fmt.Errorf("failed to get zone: %w", err)
	}
	// "projects/NUMBER/zones/ZONE"
	zone = zoneRaw[strings.LastIndex(zoneRaw, "/")+1:]

	instance, err = getInstanceMetadataField(ctx, "instance/name")
	if err != nil {
		return "", "", "", fmt.Errorf("failed to get instance name: %w", err)
	}
	return project, zone, instance, nil
}
