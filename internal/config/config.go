// Package config собирает настройки процессов Conveyor из окружения.
//
// Переменные можно положить в .env в рабочей директории: Load подхватит
// его через godotenv, не перезаписывая уже заданные переменные.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Значения по умолчанию.
const (
	DefaultWorkflowFile    = "conveyor.yml"
	DefaultAPIPort         = "8080"
	DefaultSchedulerPort   = "8081"
	DefaultOrchPort        = "8083"
	DefaultAPIURL          = "http://localhost:8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultPrefetch        = 1
)

// Config — настройки процесса.
type Config struct {
	// DatabaseURL — DSN PostgreSQL (DB_URL). Пусто — repo.DefaultDSN.
	DatabaseURL string

	// RabbitMQURL — адрес брокера (RABBITMQ_URL). Пусто — mq.DefaultURL.
	RabbitMQURL string

	// WorkflowFile — путь к YAML workflow (WORKFLOW_FILE).
	WorkflowFile string

	// WorkDir — корень workspace для jobs (WORK_DIR). Пусто — текущая директория.
	WorkDir string

	// APIURL — адрес API для удалённых команд CLI (CONVEYOR_API_URL).
	APIURL string

	APIPort       string // API_PORT
	OrchPort      string // ORCH_PORT
	SchedulerPort string // SCHED_PORT

	// Prefetch — сколько событий orchestrator берёт из очереди (ORCH_PREFETCH).
	Prefetch int

	// ShutdownTimeout — время на graceful shutdown (SHUTDOWN_TIMEOUT, "10s").
	ShutdownTimeout time.Duration
}

// Load читает .env (если есть) и переменные окружения.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv собирает Config через функцию чтения переменных.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		DatabaseURL:   getenv("DB_URL"),
		RabbitMQURL:   getenv("RABBITMQ_URL"),
		WorkflowFile:  get("WORKFLOW_FILE", DefaultWorkflowFile),
		WorkDir:       getenv("WORK_DIR"),
		APIURL:        get("CONVEYOR_API_URL", DefaultAPIURL),
		APIPort:       get("API_PORT", DefaultAPIPort),
		OrchPort:      get("ORCH_PORT", DefaultOrchPort),
		SchedulerPort: get("SCHED_PORT", DefaultSchedulerPort),
	}

	var err error
	if cfg.Prefetch, err = strconv.Atoi(get("ORCH_PREFETCH", strconv.Itoa(DefaultPrefetch))); err != nil || cfg.Prefetch <= 0 {
		return Config{}, fmt.Errorf("invalid ORCH_PREFETCH %q", getenv("ORCH_PREFETCH"))
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(get("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout.String())); err != nil {
		return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// Addr возвращает адрес для http.Server из номера порта.
func Addr(port string) string {
	return ":" + port
}
