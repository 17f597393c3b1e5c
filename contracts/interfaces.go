package contracts

import "context"

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// PublishClient performs the remote calls of the publish workflows.
// Implementations must be safe for concurrent use; every failure is a *RemoteError.
type PublishClient interface {
	// CreateAsset uploads a raw file as a new item.
	CreateAsset(ctx context.Context, req ItemRequest) (*CreatedItem, error)

	// Analyze infers publish parameters from an uploaded item.
	Analyze(ctx context.Context, itemID, fileType string) (*Analysis, error)

	// PublishService materializes a feature service from an uploaded item.
	PublishService(ctx context.Context, req PublishRequest) (*PublishResult, error)

	// ShareItem shares an item with groups and the requested visibility.
	ShareItem(ctx context.Context, req ShareRequest) (*ShareResult, error)
}

// GroupCreator creates the target group when none is configured.
type GroupCreator interface {
	CreateGroup(ctx context.Context, req GroupRequest) (string, error)
}

// RemoteClient is the full remote surface used by an import run.
type RemoteClient interface {
	PublishClient
	GroupCreator
}

// Extractor unpacks an archive into dir and describes every entry.
// It fails with an *ExtractionError if the archive cannot be read.
type Extractor interface {
	Extract(archive, dir string) ([]ImportItem, error)
}
