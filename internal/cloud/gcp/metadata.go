package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	compute "google.golang.org/api/compute/v1"
	"google.golang.org/api/option"
)

// StatusMetadataKey is the instance metadata key the round status is written to.
const StatusMetadataKey = "crowdplay-status"

// MetadataUpdater defines the interface for updating GCP instance metadata.
type MetadataUpdater interface {
	UpdateStatus(ctx context.Context, status RoundStatusMetadata) error
	Close() error
}

// RoundStatusMetadata is the JSON written to the status metadata key after
// every round, so operators can see progress with `gcloud compute instances
// describe`.
type RoundStatusMetadata struct {
	Round       int      `json:"round"`
	MaxRounds   int      `json:"max_rounds,omitempty"`
	Anchor      string   `json:"anchor"`
	LastAuthor  string   `json:"last_author,omitempty"`
	LastActions []string `json:"last_actions,omitempty"`
	LastPostID  string   `json:"last_post_id,omitempty"`
}

// MetadataAPI is a thin interface around the Compute API methods needed
// for metadata updates. This enables testing with mocks.
type MetadataAPI interface {
	GetInstance(ctx context.Context, project, zone, instance string) (*compute.Instance, error)
	SetMetadata(ctx context.Context, project, zone, instance string, metadata *compute.Metadata) error
}

// computeMetadataAPI wraps the real Compute API service.
type computeMetadataAPI struct {
	service *compute.Service
}

func (a *computeMetadataAPI) GetInstance(ctx context.Context, project, zone, instance string) (*compute.Instance, error) {
	return a.service.Instances.Get(project, zone, instance).Context(ctx).Do()
}

func (a *computeMetadataAPI) SetMetadata(ctx context.Context, project, zone, instance string, metadata *compute.Metadata) error {
	_, err := a.service.Instances.SetMetadata(project, zone, instance, metadata).Context(ctx).Do()
	return err
}

// ComputeMetadataUpdater implements MetadataUpdater using the GCP Compute API.
type ComputeMetadataUpdater struct {
	api      MetadataAPI
	project  string
	zone     string
	instance string
}

// NewComputeMetadataUpdater creates a MetadataUpdater that auto-discovers
// project, zone, and instance name from the GCP metadata server.
func NewComputeMetadataUpdater(ctx context.Context, opts ...option.ClientOption) (*ComputeMetadataUpdater, error) {
	service, err := compute.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute service: %w", err)
	}

	project, zone, instance, err := instanceLocation(ctx)
	if err != nil {
		return nil, err
	}

	return NewComputeMetadataUpdaterWithAPI(&computeMetadataAPI{service: service}, project, zone, instance), nil
}

// NewComputeMetadataUpdaterWithAPI creates a MetadataUpdater with an injected
// MetadataAPI implementation. Used for testing.
func NewComputeMetadataUpdaterWithAPI(api MetadataAPI, project, zone, instance string) *ComputeMetadataUpdater {
	return &ComputeMetadataUpdater{
		api:      api,
		project:  project,
		zone:     zone,
		instance: instance,
	}
}

// UpdateStatus writes status to the StatusMetadataKey metadata key.
// It fetches current metadata first to obtain the fingerprint for atomic updates.
func (u *ComputeMetadataUpdater) UpdateStatus(ctx context.Context, status RoundStatusMetadata) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	inst, err := u.api.GetInstance(ctx, u.project, u.zone, u.instance)
	if err != nil {
		return fmt.Errorf("failed to get instance metadata: %w", err)
	}

	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	statusStr := string(statusJSON)

	metadata := inst.Metadata
	if metadata == nil {
		metadata = &compute.Metadata{}
	}
	found := false
	for _, item := range metadata.Items {
		if item.Key == StatusMetadataKey {
			item.Value = &statusStr
			found = true
			break
		}
	}
	if !found {
		metadata.Items = append(metadata.Items, &compute.MetadataItems{
			Key:   StatusMetadataKey,
			Value: &statusStr,
		})
	}

	if err := u.api.SetMetadata(ctx, u.project, u.zone, u.instance, metadata); err != nil {
		return fmt.Errorf("failed to set instance metadata: %w", err)
	}

	return nil
}

// Close is a no-op for the compute metadata updater (the service has no Close method).
func (u *ComputeMetadataUpdater) Close() error {
	return nil
}
