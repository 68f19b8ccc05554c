package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
	"github.com/ruteri/azure-storage-migration-kit/fallback"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// ServiceBackend binds interfaces.ServiceHandle to an Azure blob service client.
type ServiceBackend struct {
	client  *service.Client
	account string
	log     *slog.Logger
}

// NewServiceBackend wraps an azblob service client.
func NewServiceBackend(client *service.Client, log *slog.Logger) (*ServiceBackend, error) {
	account, err := AccountNameFromURL(client.URL())
	if err != nil {
		return nil, err
	}
	return &ServiceBackend{client: client, account: account, log: log}, nil
}

// AccountNameFromURL extracts the storage account name from a service, container or blob URL.
// Path-style emulator URLs (http://127.0.0.1:10000/devstoreaccount1) are supported.
func AccountNameFromURL(rawURL string) (string, error) {
	parts, err := blob.ParseURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse storage url: %w", err)
	}
	if parts.IPEndpointStyleInfo.AccountName != "" {
		return parts.IPEndpointStyleInfo.AccountName, nil
	}
	account, _, _ := strings.Cut(parts.Host, ".")
	if account == "" {
		return "", fmt.Errorf("no account name in storage url %q", rawURL)
	}
	return account, nil
}

func (s *ServiceBackend) AccountName() string {
	return s.account
}

func (s *ServiceBackend) URL() string {
	return s.client.URL()
}

func (s *ServiceBackend) ContainerClient(containerName string) interfaces.ContainerHandle {
	return &ContainerBackend{client: s.client.NewContainerClient(containerName), name: containerName, log: s.log}
}

// ListContainers walks the container pager, yielding names in service order.
func (s *ServiceBackend) ListContainers(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		pager := s.client.NewListContainersPager(nil)
		for pager.More() {
			resp, err := pager.NextPage(ctx)
			if err != nil {
				yield("", err)
				return
			}
			for _, item := range resp.ContainerItems {
				if item == nil || item.Name == nil {
					continue
				}
				if !yield(*item.Name, nil) {
					return
				}
			}
		}
	}
}

// ContainerBackend binds interfaces.ContainerHandle to an Azure container client.
type ContainerBackend struct {
	client *container.Client
	name   string
	log    *slog.Logger
}

func (c *ContainerBackend) Name() string {
	return c.name
}

func (c *ContainerBackend) BlobClient(blobName string) interfaces.BlobHandle {
	return c.blockBlob(blobName)
}

func (c *ContainerBackend) BlockBlobClient(blobName string) interfaces.BlockBlobHandle {
	return c.blockBlob(blobName)
}

func (c *ContainerBackend) blockBlob(blobName string) *BlobBackend {
	return &BlobBackend{
		client:    c.client.NewBlockBlobClient(blobName),
		container: c.name,
		name:      blobName,
	}
}

func (c *ContainerBackend) UploadBlockBlob(ctx context.Context, blobName string, body io.ReadSeeker, length int64, opts *interfaces.UploadOptions) (interfaces.BlockBlobHandle, interfaces.UploadReceipt, error) {
	b := c.blockBlob(blobName)
	receipt, err := b.Upload(ctx, body, length, opts)
	if err != nil {
		return nil, interfaces.UploadReceipt{}, err
	}
	return b, receipt, nil
}

func (c *ContainerBackend) CreateIfNotExists(ctx context.Context) error {
	_, err := c.client.Create(ctx, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to create container %s: %w", c.name, err)
	}
	if err == nil && c.log != nil {
		c.log.Info("Created container", slog.String("container", c.name))
	}
	return nil
}

// ListBlobPages drives the flat listing pager one page at a time. Each yielded page
// carries the marker of the next one, so a caller may persist it and resume later.
func (c *ContainerBackend) ListBlobPages(ctx context.Context, opts *interfaces.ListBlobsOptions) iter.Seq2[interfaces.BlobPage, error] {
	listOpts := &container.ListBlobsFlatOptions{}
	if opts != nil {
		listOpts.Include = container.ListBlobsInclude{Tags: opts.IncludeTags}
		if opts.ContinuationToken != "" {
			listOpts.Marker = to.Ptr(opts.ContinuationToken)
		}
		if opts.MaxPageSize > 0 {
			listOpts.MaxResults = to.Ptr(opts.MaxPageSize)
		}
	}

	return func(yield func(interfaces.BlobPage, error) bool) {
		pager := c.client.NewListBlobsFlatPager(listOpts)
		for pager.More() {
			resp, err := pager.NextPage(ctx)
			if err != nil {
				yield(interfaces.BlobPage{}, translateNotFound(err))
				return
			}

			page := interfaces.BlobPage{}
			if resp.Segment != nil {
				for _, item := range resp.Segment.BlobItems {
					if item == nil || item.Name == nil {
						continue
					}
					page.Items = append(page.Items, interfaces.BlobItem{
						Name: *item.Name,
						Tags: blobTags(item.BlobTags),
					})
				}
			}
			if resp.NextMarker != nil {
				page.ContinuationToken = *resp.NextMarker
			}

			if !yield(page, nil) {
				return
			}
		}
	}
}

func blobTags(tags *container.BlobTags) map[string]string {
	if tags == nil || len(tags.BlobTagSet) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags.BlobTagSet))
	for _, tag := range tags.BlobTagSet {
		if tag == nil || tag.Key == nil {
			continue
		}
		out[*tag.Key] = stringValue(tag.Value)
	}
	return out
}

// BlobBackend binds interfaces.BlockBlobHandle to an Azure block blob client.
type BlobBackend struct {
	client    *blockblob.Client
	container string
	name      string
}

func (b *BlobBackend) ContainerName() string {
	return b.container
}

func (b *BlobBackend) Name() string {
	return b.name
}

func (b *BlobBackend) URL() string {
	return b.client.URL()
}

func (b *BlobBackend) Exists(ctx context.Context) (bool, error) {
	_, err := b.client.GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if fallback.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (b *BlobBackend) Download(ctx context.Context, opts *interfaces.DownloadOptions) (io.ReadCloser, error) {
	resp, err := b.client.DownloadStream(ctx, &blob.DownloadStreamOptions{Range: httpRange(opts)})
	if err != nil {
		return nil, translateNotFound(err)
	}
	return resp.Body, nil
}

func (b *BlobBackend) DownloadBuffer(ctx context.Context, opts *interfaces.DownloadOptions) ([]byte, error) {
	body, err := b.Download(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", b.container, b.name, err)
	}
	return data, nil
}

func (b *BlobBackend) DeleteIfExists(ctx context.Context, opts *interfaces.DeleteOptions) (interfaces.DeleteResult, error) {
	deleteOpts := &blob.DeleteOptions{}
	if opts != nil && opts.IncludeSnapshots {
		deleteOpts.DeleteSnapshots = to.Ptr(blob.DeleteSnapshotsOptionTypeInclude)
	}
	_, err := b.client.Delete(ctx, deleteOpts)
	if err == nil {
		return interfaces.DeleteResult{Succeeded: true}, nil
	}
	if fallback.IsNotFound(err) {
		return interfaces.DeleteResult{Succeeded: false}, nil
	}
	return interfaces.DeleteResult{}, err
}

// GenerateSASURL requires a client built with a shared key credential.
func (b *BlobBackend) GenerateSASURL(opts interfaces.SASOptions) (string, error) {
	return b.client.GetSASURL(sasPermissions(opts.Permissions), opts.ExpiresOn, &blob.GetSASURLOptions{StartTime: opts.StartsOn})
}

// Upload checks the declared length against the seekable body before sending it.
func (b *BlobBackend) Upload(ctx context.Context, body io.ReadSeeker, length int64, opts *interfaces.UploadOptions) (interfaces.UploadReceipt, error) {
	if length >= 0 {
		if err := checkLength(body, length); err != nil {
			return interfaces.UploadReceipt{}, err
		}
	}

	resp, err := b.client.Upload(ctx, streaming.NopCloser(body), uploadOptions(opts))
	if err != nil {
		return interfaces.UploadReceipt{}, translateNotFound(err)
	}

	receipt := interfaces.UploadReceipt{}
	if resp.ETag != nil {
		receipt.ETag = string(*resp.ETag)
	}
	if resp.LastModified != nil {
		receipt.LastModified = *resp.LastModified
	}
	return receipt, nil
}

func checkLength(body io.ReadSeeker, length int64) error {
	start, err := body.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("failed to seek upload body: %w", err)
	}
	end, err := body.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek upload body: %w", err)
	}
	if _, err := body.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind upload body: %w", err)
	}
	if end-start != length {
		return fmt.Errorf("%w: declared %d, body has %d", interfaces.ErrLengthMismatch, length, end-start)
	}
	return nil
}

func uploadOptions(opts *interfaces.UploadOptions) *blockblob.UploadOptions {
	if opts == nil {
		return nil
	}
	out := &blockblob.UploadOptions{Tags: opts.Tags}
	if len(opts.Metadata) > 0 {
		out.Metadata = make(map[string]*string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			out.Metadata[k] = to.Ptr(v)
		}
	}
	if opts.ContentType != "" {
		out.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(opts.ContentType)}
	}
	return out
}

func httpRange(opts *interfaces.DownloadOptions) blob.HTTPRange {
	if opts == nil {
		return blob.HTTPRange{}
	}
	return blob.HTTPRange{Offset: opts.Offset, Count: opts.Count}
}

func sasPermissions(p interfaces.SASPermissions) sas.BlobPermissions {
	return sas.BlobPermissions{
		Read:   p.Read,
		Add:    p.Add,
		Create: p.Create,
		Write:  p.Write,
		Delete: p.Delete,
		Tag:    p.Tag,
	}
}

// SASExpiry is the default lifetime of URLs signed by the operator tooling.
const SASExpiry = time.Hour

// translateNotFound joins azure not-found errors with interfaces.ErrBlobNotFound so that
// callers can test for absence with errors.Is while keeping the service error.
func translateNotFound(err error) error {
	if err == nil || !fallback.IsNotFound(err) {
		return err
	}
	return errors.Join(interfaces.ErrBlobNotFound, err)
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
