package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/telemetry"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// RunStore — чтение runs. Реализация: repo.Store.
type RunStore interface {
	ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.RunResult, error)
	GetRun(ctx context.Context, id uuid.UUID) (*domain.RunResult, error)
	ListJobs(ctx context.Context, runID uuid.UUID) ([]domain.JobResult, error)
}

// EventPublisher ставит принятые события в очередь. Реализация: mq.Publisher.
type EventPublisher interface {
	PublishEventReceived(ctx context.Context, event domain.Event) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflow  *domain.Workflow
	listener  *trigger.Listener
	store     RunStore
	publisher EventPublisher
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Workflow  *domain.Workflow
	Store     RunStore
	Publisher EventPublisher
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		workflow:  cfg.Workflow,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
	if cfg.Workflow != nil {
		h.listener = trigger.New(cfg.Workflow.Triggers)
	}
	return h
}
