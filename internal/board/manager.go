package board

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/praxisboard/board-api/internal/model"
	"github.com/praxisboard/board-api/internal/repository"
	"github.com/praxisboard/board-api/internal/storage"
	"github.com/praxisboard/board-api/pkg/logger"
	"github.com/praxisboard/board-api/pkg/messaging"
)

// Manager holds one Board per owner and fans the change feed out to them. A
// single subscription serves every board; it lives for the process lifetime
// and is never duplicated.
type Manager struct {
	mu     sync.RWMutex
	boards map[uuid.UUID]*Board

	repo      repository.PatientRepository
	store     storage.ObjectStore
	broker    messaging.Broker
	logger    *logger.Logger
	channel   string
	urlExpiry time.Duration
}

func NewManager(
	repo repository.PatientRepository,
	store storage.ObjectStore,
	broker messaging.Broker,
	log *logger.Logger,
	channel string,
	urlExpiry time.Duration,
) *Manager {
	return &Manager{
		boards:    make(map[uuid.UUID]*Board),
		repo:      repo,
		store:     store,
		broker:    broker,
		logger:    log,
		channel:   channel,
		urlExpiry: urlExpiry,
	}
}

// Get returns the owner's board, creating it on first use.
func (m *Manager) Get(ownerID uuid.UUID) *Board {
	m.mu.RLock()
	b, ok := m.boards[ownerID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.boards[ownerID]; ok {
		return b
	}
	b = New(ownerID, m.repo, m.store, m.logger, m.urlExpiry)
	m.boards[ownerID] = b
	return b
}

// Run consumes the change feed until ctx is cancelled, routing each event to
// the owning board. Events for owners without a live board are dropped; those
// boards will see the change on their next load.
func (m *Manager) Run(ctx context.Context) error {
	feed, err := m.broker.Subscribe(ctx, m.channel)
	if err != nil {
		return err
	}

	m.logger.Info("change feed consumer started", "channel", m.channel)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("change feed consumer stopped")
			return ctx.Err()
		case payload, ok := <-feed:
			if !ok {
				m.logger.Info("change feed closed")
				return nil
			}
			m.dispatch(ctx, payload)
		}
	}
}

func (m *Manager) dispatch(ctx context.Context, payload []byte) {
	var event model.PatientEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		m.logger.Error(err, "failed to decode feed event")
		return
	}

	m.mu.RLock()
	b, ok := m.boards[event.OwnerID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	b.Apply(ctx, &event)
}
