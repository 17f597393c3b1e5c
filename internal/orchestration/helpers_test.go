package orchestration

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jakesower/gtfs-import/contracts"
	"github.com/jakesower/gtfs-import/internal/audit"
)

func init() {
	audit.SetLogger(nil)
}

// fakeClient implements contracts.PublishClient in memory.
// failOn keys are "<op>:<title or item id>".
type fakeClient struct {
	mu        sync.Mutex
	calls     map[string]int
	failOn    map[string]error
	analysis  contracts.PublishParameters
	uploads   map[string]string
	published []contracts.PublishRequest
	shared    []contracts.ShareRequest
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls:    make(map[string]int),
		failOn:   make(map[string]error),
		analysis: contracts.PublishParameters{"type": "csv"},
		uploads:  make(map[string]string),
	}
}

func (c *fakeClient) record(op, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
	return c.failOn[op+":"+key]
}

func (c *fakeClient) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *fakeClient) CreateAsset(ctx context.Context, req contracts.ItemRequest) (*contracts.CreatedItem, error) {
	if err := c.record("create", req.Title); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(req.File)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.uploads[req.Title] = string(data)
	c.mu.Unlock()
	return &contracts.CreatedItem{ID: "item-" + req.Title}, nil
}

func (c *fakeClient) Analyze(ctx context.Context, itemID, fileType string) (*contracts.Analysis, error) {
	if err := c.record("analyze", itemID); err != nil {
		return nil, err
	}
	return &contracts.Analysis{PublishParameters: c.analysis.DeepClone()}, nil
}

func (c *fakeClient) PublishService(ctx context.Context, req contracts.PublishRequest) (*contracts.PublishResult, error) {
	if err := c.record("publish", req.ItemID); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.published = append(c.published, req)
	c.mu.Unlock()
	return &contracts.PublishResult{
		Services: []contracts.PublishedService{{ServiceItemID: "svc-" + req.ItemID}},
	}, nil
}

func (c *fakeClient) ShareItem(ctx context.Context, req contracts.ShareRequest) (*contracts.ShareResult, error) {
	if err := c.record("share", req.ItemID); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.shared = append(c.shared, req)
	c.mu.Unlock()
	return &contracts.ShareResult{ItemID: req.ItemID}, nil
}

// writeItem creates fileName under dir and returns its ImportItem.
func writeItem(t *testing.T, dir, name, fileName string) contracts.ImportItem {
	t.Helper()
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, []byte("id,name\n1,"+name+"\n"), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return contracts.ImportItem{Name: name, FileName: fileName, Path: path}
}

// testManifest publishes stops.txt and uploads everything else.
func testManifest() contracts.Manifest {
	return contracts.Manifest{
		"agency.txt": {Required: true},
		"stops.txt": {Required: true, Publish: contracts.PublishParameters{
			"locationType": "coordinates",
		}},
		"shapes.txt": {},
	}
}

func newTestBuilder(t *testing.T, client contracts.PublishClient) *ChainBuilder {
	t.Helper()
	b, err := NewChainBuilder(ChainConfig{
		Client:   client,
		Manifest: testManifest(),
		GroupID:  "group-1",
		Share:    contracts.DefaultSharePolicy(),
	})
	if err != nil {
		t.Fatalf("NewChainBuilder: %v", err)
	}
	return b
}

// okWork returns value without looking at upstream.
func okWork(value any) WorkFunc {
	return func(ctx context.Context, upstream []any) (any, error) {
		return value, nil
	}
}

func errWork(err error) WorkFunc {
	return func(ctx context.Context, upstream []any) (any, error) {
		return nil, err
	}
}

// singleChain wraps loose tasks in a set for executor tests.
func singleChain(name string, tasks ...*Task) *Chain {
	return &Chain{
		Item:     contracts.ImportItem{Name: name, FileName: name + ".txt", Path: "/nonexistent/" + name},
		Shape:    contracts.ShapeSimple,
		Tasks:    tasks,
		Terminal: tasks[len(tasks)-1],
	}
}
