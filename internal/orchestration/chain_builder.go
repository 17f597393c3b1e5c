package orchestration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jakesower/gtfs-import/contracts"
)

// Upload and publish settings shared by every chain.
const (
	AssetType = "CSV"
	FileType  = "csv"
)

// AssetTags are attached to every uploaded asset.
var AssetTags = []string{"gtfs"}

// ChainConfig contains what a ChainBuilder needs to wire task work.
type ChainConfig struct {
	Client   contracts.PublishClient
	Manifest contracts.Manifest
	GroupID  string
	Share    contracts.SharePolicy
}

// ChainBuilder turns an ImportItem into a Chain of dependent tasks.
// It wires dependency edges only; nothing runs until an Executor takes the chain.
type ChainBuilder struct {
	client   contracts.PublishClient
	manifest contracts.Manifest
	groupID  string
	share    contracts.SharePolicy
}

// NewChainBuilder creates a ChainBuilder. The client is shared read-only by
// every task the builder creates.
func NewChainBuilder(cfg ChainConfig) (*ChainBuilder, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("chain builder needs a client: %w", contracts.ErrInvalidInput)
	}
	return &ChainBuilder{
		client:   cfg.Client,
		manifest: cfg.Manifest,
		groupID:  cfg.GroupID,
		share:    cfg.Share,
	}, nil
}

// ShapeFor selects the chain shape of a file from the publish policy.
func (b *ChainBuilder) ShapeFor(fileName string) contracts.ChainShape {
	if spec, ok := b.manifest[fileName]; ok && spec.Publish != nil {
		return contracts.ShapePublish
	}
	return contracts.ShapeSimple
}

// Build returns the chain for item with all dependency edges wired.
func (b *ChainBuilder) Build(item contracts.ImportItem) (*Chain, error) {
	if item.FileName == "" || item.Path == "" {
		return nil, fmt.Errorf("import item %q: %w", item.Name, contracts.ErrInvalidInput)
	}
	if b.ShapeFor(item.FileName) == contracts.ShapePublish {
		return b.publishChain(item), nil
	}
	return b.simpleChain(item), nil
}

// simpleChain: create -> share.
func (b *ChainBuilder) simpleChain(item contracts.ImportItem) *Chain {
	create := b.task(item, 1, contracts.StepCreate, b.createWork(item))
	share := b.task(item, 2, contracts.StepShare, b.shareCreatedWork(), create)
	return &Chain{
		Item:     item,
		Shape:    contracts.ShapeSimple,
		Tasks:    []*Task{create, share},
		Terminal: share,
	}
}

// publishChain: create -> analyze -> publish(create, analyze) -> share.
func (b *ChainBuilder) publishChain(item contracts.ImportItem) *Chain {
	policy := b.manifest[item.FileName].Publish

	create := b.task(item, 1, contracts.StepCreate, b.createWork(item))
	analyze := b.task(item, 2, contracts.StepAnalyze, b.analyzeWork(), create)
	publish := b.task(item, 3, contracts.StepPublish, b.publishWork(item, policy), create, analyze)
	share := b.task(item, 4, contracts.StepShare, b.sharePublishedWork(), publish)
	return &Chain{
		Item:     item,
		Shape:    contracts.ShapePublish,
		Tasks:    []*Task{create, analyze, publish, share},
		Terminal: share,
	}
}

func (b *ChainBuilder) task(item contracts.ImportItem, seq int, step contracts.StepName, work WorkFunc, deps ...*Task) *Task {
	id := contracts.TaskID(fmt.Sprintf("%s/%d-%s", item.FileName, seq, step))
	t := NewTask(id, step, work, deps...)
	t.Seq = seq
	return t
}

func (b *ChainBuilder) createWork(item contracts.ImportItem) WorkFunc {
	return func(ctx context.Context, _ []any) (any, error) {
		f, err := os.Open(item.Path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", item.FileName, err)
		}
		defer f.Close()

		return b.client.CreateAsset(ctx, contracts.ItemRequest{
			Title:    item.Name,
			Type:     AssetType,
			Tags:     AssetTags,
			FileName: filepath.Base(item.Path),
			File:     f,
		})
	}
}

func (b *ChainBuilder) analyzeWork() WorkFunc {
	return func(ctx context.Context, upstream []any) (any, error) {
		created, err := upstreamAs[*contracts.CreatedItem](upstream, 0)
		if err != nil {
			return nil, err
		}
		return b.client.Analyze(ctx, created.ID, FileType)
	}
}

func (b *ChainBuilder) publishWork(item contracts.ImportItem, policy contracts.PublishParameters) WorkFunc {
	return func(ctx context.Context, upstream []any) (any, error) {
		created, err := upstreamAs[*contracts.CreatedItem](upstream, 0)
		if err != nil {
			return nil, err
		}
		analysis, err := upstreamAs[*contracts.Analysis](upstream, 1)
		if err != nil {
			return nil, err
		}
		params := MergePublishParameters(item.FileName, analysis.PublishParameters, policy)
		return b.client.PublishService(ctx, contracts.PublishRequest{
			ItemID:            created.ID,
			FileType:          FileType,
			PublishParameters: params,
		})
	}
}

func (b *ChainBuilder) shareCreatedWork() WorkFunc {
	return func(ctx context.Context, upstream []any) (any, error) {
		created, err := upstreamAs[*contracts.CreatedItem](upstream, 0)
		if err != nil {
			return nil, err
		}
		return b.shareItem(ctx, created.ID)
	}
}

func (b *ChainBuilder) sharePublishedWork() WorkFunc {
	return func(ctx context.Context, upstream []any) (any, error) {
		published, err := upstreamAs[*contracts.PublishResult](upstream, 0)
		if err != nil {
			return nil, err
		}
		if len(published.Services) == 0 || published.Services[0].ServiceItemID == "" {
			return nil, &contracts.RemoteError{Op: "publish", Message: "no service item was returned"}
		}
		return b.shareItem(ctx, published.Services[0].ServiceItemID)
	}
}

func (b *ChainBuilder) shareItem(ctx context.Context, itemID string) (*contracts.ShareResult, error) {
	var groups []string
	if b.groupID != "" {
		groups = []string{b.groupID}
	}
	res, err := b.client.ShareItem(ctx, contracts.ShareRequest{
		ItemID:   itemID,
		Groups:   groups,
		Everyone: b.share.Everyone,
		Org:      b.share.Org,
	})
	if err != nil {
		return nil, err
	}
	if res.ItemID == "" {
		res.ItemID = itemID
	}
	return res, nil
}
