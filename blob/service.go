package blob

import (
	"fmt"
	"log/slog"

	"github.com/ruteri/azure-storage-migration-kit/fallback"
	"github.com/ruteri/azure-storage-migration-kit/interfaces"
)

// ServiceClientWithFallback pairs the blob services of two storage accounts.
type ServiceClientWithFallback struct {
	primary  interfaces.ServiceHandle
	fallback interfaces.ServiceHandle
	tracker  interfaces.FallbackTracker
	log      *slog.Logger
}

// NewServiceClientWithFallback creates a service client. fallbackService may be nil.
func NewServiceClientWithFallback(primary, fallbackService interfaces.ServiceHandle, tracker interfaces.FallbackTracker, log *slog.Logger) (*ServiceClientWithFallback, error) {
	if fallback.IsNil(primary) {
		return nil, fmt.Errorf("service client: %w", interfaces.ErrNoBackend)
	}
	if fallback.IsNil(fallbackService) {
		fallbackService = nil
	}
	if log == nil {
		log = slog.Default()
	}
	return &ServiceClientWithFallback{
		primary:  primary,
		fallback: fallbackService,
		tracker:  tracker,
		log:      log,
	}, nil
}

func (s *ServiceClientWithFallback) AccountName() string {
	return s.primary.AccountName()
}

// ContainerClient pairs containerName on both accounts.
func (s *ServiceClientWithFallback) ContainerClient(containerName string) *ContainerClientWithFallback {
	return s.ContainerClientOnDifferentContainerNames(containerName, containerName)
}

// ContainerClientOnDifferentContainerNames pairs containerName on the primary account
// with fallbackContainerName on the fallback account.
func (s *ServiceClientWithFallback) ContainerClientOnDifferentContainerNames(containerName, fallbackContainerName string) *ContainerClientWithFallback {
	var fallbackContainer interfaces.ContainerHandle
	if s.fallback != nil {
		fallbackContainer = s.fallback.ContainerClient(fallbackContainerName)
	}
	client, _ := NewContainerClientWithFallback(s.primary.ContainerClient(containerName), fallbackContainer, s.tracker, s.log)
	return client
}
