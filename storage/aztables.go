package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

const (
	partitionKeyProperty = "PartitionKey"
	rowKeyProperty       = "RowKey"
)

// TableBackend binds interfaces.TableHandle to an aztables client.
type TableBackend struct {
	client *aztables.Client
	name   string
}

// NewTableBackend wraps an aztables client for the named table.
func NewTableBackend(client *aztables.Client, tableName string) *TableBackend {
	return &TableBackend{client: client, name: tableName}
}

func (t *TableBackend) Name() string {
	return t.name
}

func (t *TableBackend) CreateEntity(ctx context.Context, entity interfaces.Entity) (interfaces.EntityReceipt, error) {
	payload, err := MarshalEntity(entity)
	if err != nil {
		return interfaces.EntityReceipt{}, err
	}
	resp, err := t.client.AddEntity(ctx, payload, nil)
	if err != nil {
		return interfaces.EntityReceipt{}, err
	}
	return interfaces.EntityReceipt{ETag: string(resp.ETag), Value: resp.Value}, nil
}

// ListEntities walks the entity pager lazily. The first error ends the sequence.
func (t *TableBackend) ListEntities(ctx context.Context, opts *interfaces.ListEntitiesOptions) iter.Seq2[interfaces.Entity, error] {
	return func(yield func(interfaces.Entity, error) bool) {
		pager := t.client.NewListEntitiesPager(listEntitiesOptions(opts))
		for pager.More() {
			resp, err := pager.NextPage(ctx)
			if err != nil {
				yield(interfaces.Entity{}, err)
				return
			}
			for _, raw := range resp.Entities {
				entity, err := UnmarshalEntity(raw)
				if !yield(entity, err) || err != nil {
					return
				}
			}
		}
	}
}

func listEntitiesOptions(opts *interfaces.ListEntitiesOptions) *aztables.ListEntitiesOptions {
	if opts == nil {
		return nil
	}
	out := &aztables.ListEntitiesOptions{}
	if opts.Filter != "" {
		out.Filter = to.Ptr(opts.Filter)
	}
	if len(opts.Select) > 0 {
		out.Select = to.Ptr(strings.Join(opts.Select, ","))
	}
	if opts.Top > 0 {
		out.Top = to.Ptr(opts.Top)
	}
	return out
}

// MarshalEntity encodes an entity in the table service JSON shape.
func MarshalEntity(entity interfaces.Entity) ([]byte, error) {
	doc := make(map[string]any, len(entity.Properties)+2)
	maps.Copy(doc, entity.Properties)
	doc[partitionKeyProperty] = entity.PartitionKey
	doc[rowKeyProperty] = entity.RowKey

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity %s: %w", entity.Key(), err)
	}
	return payload, nil
}

// UnmarshalEntity decodes a table service JSON entity. OData annotations are dropped.
func UnmarshalEntity(raw []byte) (interfaces.Entity, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return interfaces.Entity{}, fmt.Errorf("failed to decode entity: %w", err)
	}

	entity := interfaces.Entity{Properties: make(map[string]any, len(doc))}
	for k, v := range doc {
		switch {
		case k == partitionKeyProperty:
			entity.PartitionKey, _ = v.(string)
		case k == rowKeyProperty:
			entity.RowKey, _ = v.(string)
		case strings.HasPrefix(k, "odata.") || strings.Contains(k, "@odata."):
		default:
			entity.Properties[k] = v
		}
	}
	return entity, nil
}
