package checkpoint

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// Checkpoint records how far a scan of one target account got.
type Checkpoint struct {
	// AlreadyVisitedContainers lists fully scanned containers in visit order.
	AlreadyVisitedContainers []string `json:"alreadyVisitedContainers"`
	// LastContainerName is the container being scanned when the checkpoint was saved.
	// Nil marks a finished scan.
	LastContainerName *string `json:"lastContainerName,omitempty"`
	// ContinuationToken is the listing marker of the next page of LastContainerName.
	ContinuationToken *string `json:"continuationToken,omitempty"`
}

// Name is the blob name of the checkpoint for a target account.
func Name(accountName string) string {
	return "checkpoint_" + accountName
}

// Visited reports whether the container was fully scanned.
func (c *Checkpoint) Visited(containerName string) bool {
	return c != nil && slices.Contains(c.AlreadyVisitedContainers, containerName)
}

// IsLast reports whether the container was being scanned when the checkpoint was saved.
func (c *Checkpoint) IsLast(containerName string) bool {
	return c != nil && c.LastContainerName != nil && *c.LastContainerName == containerName
}

// Done reports whether the checkpoint marks a finished scan.
func (c *Checkpoint) Done() bool {
	return c != nil && c.LastContainerName == nil
}

func (c *Checkpoint) validate() error {
	if c.AlreadyVisitedContainers == nil {
		return fmt.Errorf("%w: alreadyVisitedContainers is required", interfaces.ErrInvalidCheckpoint)
	}
	seen := make(map[string]struct{}, len(c.AlreadyVisitedContainers))
	for _, name := range c.AlreadyVisitedContainers {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: container %q visited twice", interfaces.ErrInvalidCheckpoint, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Encode serializes the checkpoint. A nil visited list is written as an empty one.
func Encode(c Checkpoint) ([]byte, error) {
	if c.AlreadyVisitedContainers == nil {
		c.AlreadyVisitedContainers = []string{}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// Decode parses and validates a checkpoint.
func Decode(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidCheckpoint, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
