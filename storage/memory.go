package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// MemoryService is an in-process blob service. It backs memory:// locations and tests.
// Containers and blobs are listed in lexicographic order, like the Azure listing APIs.
type MemoryService struct {
	account string

	mu         sync.Mutex
	containers map[string]map[string]*memoryObject
}

type memoryObject struct {
	data         []byte
	tags         map[string]string
	metadata     map[string]string
	contentType  string
	lastModified time.Time
}

// NewMemoryService creates an empty in-memory account.
func NewMemoryService(account string) *MemoryService {
	return &MemoryService{
		account:    account,
		containers: make(map[string]map[string]*memoryObject),
	}
}

func (s *MemoryService) AccountName() string {
	return s.account
}

func (s *MemoryService) URL() string {
	return "memory://" + s.account + "/"
}

func (s *MemoryService) ContainerClient(containerName string) interfaces.ContainerHandle {
	return &MemoryContainer{service: s, name: containerName}
}

// ListContainers yields existing containers in name order.
func (s *MemoryService) ListContainers(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.mu.Lock()
		names := slices.Sorted(maps.Keys(s.containers))
		s.mu.Unlock()

		for _, name := range names {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(name, nil) {
				return
			}
		}
	}
}

// PutBlob stores a blob, creating the container when needed.
func (s *MemoryService) PutBlob(containerName, blobName string, data []byte, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[containerName]
	if !ok {
		c = make(map[string]*memoryObject)
		s.containers[containerName] = c
	}
	c[blobName] = &memoryObject{
		data:         bytes.Clone(data),
		tags:         maps.Clone(tags),
		lastModified: time.Now(),
	}
}

func (s *MemoryService) get(containerName, blobName string) (*memoryObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.containers[containerName][blobName]
	return obj, ok
}

// MemoryContainer is a container of a MemoryService.
type MemoryContainer struct {
	service *MemoryService
	name    string
}

func (c *MemoryContainer) Name() string {
	return c.name
}

func (c *MemoryContainer) BlobClient(blobName string) interfaces.BlobHandle {
	return c.blob(blobName)
}

func (c *MemoryContainer) BlockBlobClient(blobName string) interfaces.BlockBlobHandle {
	return c.blob(blobName)
}

func (c *MemoryContainer) blob(blobName string) *MemoryBlob {
	return &MemoryBlob{service: c.service, container: c.name, name: blobName}
}

func (c *MemoryContainer) UploadBlockBlob(ctx context.Context, blobName string, body io.ReadSeeker, length int64, opts *interfaces.UploadOptions) (interfaces.BlockBlobHandle, interfaces.UploadReceipt, error) {
	b := c.blob(blobName)
	receipt, err := b.Upload(ctx, body, length, opts)
	if err != nil {
		return nil, interfaces.UploadReceipt{}, err
	}
	return b, receipt, nil
}

func (c *MemoryContainer) CreateIfNotExists(ctx context.Context) error {
	c.service.mu.Lock()
	defer c.service.mu.Unlock()
	if _, ok := c.service.containers[c.name]; !ok {
		c.service.containers[c.name] = make(map[string]*memoryObject)
	}
	return nil
}

// ListBlobPages pages through blob names in order. The continuation token is the index
// of the next blob.
func (c *MemoryContainer) ListBlobPages(ctx context.Context, opts *interfaces.ListBlobsOptions) iter.Seq2[interfaces.BlobPage, error] {
	return func(yield func(interfaces.BlobPage, error) bool) {
		pageSize := 5000
		offset := 0
		includeTags := false
		if opts != nil {
			if opts.MaxPageSize > 0 {
				pageSize = int(opts.MaxPageSize)
			}
			if opts.ContinuationToken != "" {
				n, err := strconv.Atoi(opts.ContinuationToken)
				if err != nil || n < 0 {
					yield(interfaces.BlobPage{}, fmt.Errorf("invalid continuation token %q", opts.ContinuationToken))
					return
				}
				offset = n
			}
			includeTags = opts.IncludeTags
		}

		for {
			if err := ctx.Err(); err != nil {
				yield(interfaces.BlobPage{}, err)
				return
			}

			c.service.mu.Lock()
			objects, ok := c.service.containers[c.name]
			if !ok {
				c.service.mu.Unlock()
				yield(interfaces.BlobPage{}, fmt.Errorf("container %s: %w", c.name, interfaces.ErrBlobNotFound))
				return
			}
			names := slices.Sorted(maps.Keys(objects))
			end := min(offset+pageSize, len(names))
			page := interfaces.BlobPage{}
			for _, name := range names[min(offset, len(names)):end] {
				item := interfaces.BlobItem{Name: name}
				if includeTags {
					item.Tags = maps.Clone(objects[name].tags)
				}
				page.Items = append(page.Items, item)
			}
			if end < len(names) {
				page.ContinuationToken = strconv.Itoa(end)
			}
			c.service.mu.Unlock()

			if !yield(page, nil) || page.ContinuationToken == "" {
				return
			}
			offset = end
		}
	}
}

// MemoryBlob is a blob of a MemoryService.
type MemoryBlob struct {
	service   *MemoryService
	container string
	name      string
}

func (b *MemoryBlob) ContainerName() string {
	return b.container
}

func (b *MemoryBlob) Name() string {
	return b.name
}

func (b *MemoryBlob) URL() string {
	return b.service.URL() + b.container + "/" + b.name
}

func (b *MemoryBlob) Exists(ctx context.Context) (bool, error) {
	_, ok := b.service.get(b.container, b.name)
	return ok, nil
}

func (b *MemoryBlob) DownloadBuffer(ctx context.Context, opts *interfaces.DownloadOptions) ([]byte, error) {
	obj, ok := b.service.get(b.container, b.name)
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", b.container, b.name, interfaces.ErrBlobNotFound)
	}
	data := obj.data
	if opts != nil {
		if opts.Offset < 0 || opts.Count < 0 {
			return nil, fmt.Errorf("invalid range offset %d count %d", opts.Offset, opts.Count)
		}
		if opts.Offset > int64(len(data)) {
			return nil, fmt.Errorf("offset %d beyond blob size %d", opts.Offset, len(data))
		}
		data = data[opts.Offset:]
		if opts.Count > 0 && opts.Count < int64(len(data)) {
			data = data[:opts.Count]
		}
	}
	return bytes.Clone(data), nil
}

func (b *MemoryBlob) Download(ctx context.Context, opts *interfaces.DownloadOptions) (io.ReadCloser, error) {
	data, err := b.DownloadBuffer(ctx, opts)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *MemoryBlob) DeleteIfExists(ctx context.Context, opts *interfaces.DeleteOptions) (interfaces.DeleteResult, error) {
	b.service.mu.Lock()
	defer b.service.mu.Unlock()
	objects := b.service.containers[b.container]
	if _, ok := objects[b.name]; !ok {
		return interfaces.DeleteResult{Succeeded: false}, nil
	}
	delete(objects, b.name)
	return interfaces.DeleteResult{Succeeded: true}, nil
}

func (b *MemoryBlob) GenerateSASURL(opts interfaces.SASOptions) (string, error) {
	perms := sasPermissions(opts.Permissions)
	return fmt.Sprintf("%s?se=%s&sp=%s", b.URL(), opts.ExpiresOn.UTC().Format(time.RFC3339), perms.String()), nil
}

func (b *MemoryBlob) Upload(ctx context.Context, body io.ReadSeeker, length int64, opts *interfaces.UploadOptions) (interfaces.UploadReceipt, error) {
	data, err := readBody(body, length)
	if err != nil {
		return interfaces.UploadReceipt{}, err
	}

	obj := &memoryObject{data: data, lastModified: time.Now()}
	if opts != nil {
		obj.tags = maps.Clone(opts.Tags)
		obj.metadata = maps.Clone(opts.Metadata)
		obj.contentType = opts.ContentType
	}

	b.service.mu.Lock()
	defer b.service.mu.Unlock()
	objects, ok := b.service.containers[b.container]
	if !ok {
		return interfaces.UploadReceipt{}, fmt.Errorf("container %s: %w", b.container, interfaces.ErrBlobNotFound)
	}
	objects[b.name] = obj
	return interfaces.UploadReceipt{
		ETag:         fmt.Sprintf("\"%x\"", obj.lastModified.UnixNano()),
		LastModified: obj.lastModified,
	}, nil
}

// readBody reads the rest of body, checking it against the declared length.
// A negative length skips the check.
func readBody(body io.ReadSeeker, length int64) ([]byte, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload body: %w", err)
	}
	if length >= 0 && int64(len(data)) != length {
		return nil, fmt.Errorf("%w: declared %d, read %d", interfaces.ErrLengthMismatch, length, len(data))
	}
	return data, nil
}

// ErrEntityExists is returned by MemoryTable when an entity with the same key is already stored.
var ErrEntityExists = errors.New("entity already exists")

// MemoryTable is an in-process table. Entities are listed in insertion order; filters
// are not supported.
type MemoryTable struct {
	name string

	mu       sync.Mutex
	entities []interfaces.Entity
	index    map[interfaces.EntityKey]struct{}
}

func NewMemoryTable(name string) *MemoryTable {
	return &MemoryTable{name: name, index: make(map[interfaces.EntityKey]struct{})}
}

func (t *MemoryTable) Name() string {
	return t.name
}

func (t *MemoryTable) CreateEntity(ctx context.Context, entity interfaces.Entity) (interfaces.EntityReceipt, error) {
	payload, err := MarshalEntity(entity)
	if err != nil {
		return interfaces.EntityReceipt{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[entity.Key()]; ok {
		return interfaces.EntityReceipt{}, fmt.Errorf("%w: %s", ErrEntityExists, entity.Key())
	}
	entity.Properties = maps.Clone(entity.Properties)
	t.entities = append(t.entities, entity)
	t.index[entity.Key()] = struct{}{}
	return interfaces.EntityReceipt{ETag: fmt.Sprintf("W/\"%d\"", len(t.entities)), Value: payload}, nil
}

func (t *MemoryTable) ListEntities(ctx context.Context, opts *interfaces.ListEntitiesOptions) iter.Seq2[interfaces.Entity, error] {
	return func(yield func(interfaces.Entity, error) bool) {
		if opts != nil && opts.Filter != "" {
			yield(interfaces.Entity{}, fmt.Errorf("memory table filter: %w", interfaces.ErrNotImplemented))
			return
		}

		t.mu.Lock()
		entities := slices.Clone(t.entities)
		t.mu.Unlock()

		if opts != nil && opts.Top > 0 && int(opts.Top) < len(entities) {
			entities = entities[:opts.Top]
		}
		for _, entity := range entities {
			if err := ctx.Err(); err != nil {
				yield(interfaces.Entity{}, err)
				return
			}
			if opts != nil && len(opts.Select) > 0 {
				selected := make(map[string]any, len(opts.Select))
				for _, name := range opts.Select {
					if v, ok := entity.Properties[name]; ok {
						selected[name] = v
					}
				}
				entity.Properties = selected
			}
			if !yield(entity, nil) {
				return
			}
		}
	}
}
