package api

import (
	"log/slog"

	"github.com/shaiso/Vigil/internal/mq"
	"github.com/shaiso/Vigil/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	scheduleRepo  *repo.ScheduleRepo
	executionRepo *repo.ExecutionRepo
	publisher     *mq.Publisher
	logger        *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	ScheduleRepo  *repo.ScheduleRepo
	ExecutionRepo *repo.ExecutionRepo
	Publisher     *mq.Publisher
	Logger        *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		scheduleRepo:  cfg.ScheduleRepo,
		executionRepo: cfg.ExecutionRepo,
		publisher:     cfg.Publisher,
		logger:        cfg.Logger,
	}
}
