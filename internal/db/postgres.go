package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/types"
	"github.com/fennecvideo/fennec/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := utils.GetEnv("DB_HOST", "localhost", log)
	port := utils.GetEnv("DB_PORT", "5432", log)
	user := utils.GetEnv("DB_USER", "fennec", log)
	password := utils.GetEnv("DB_PASSWORD", "fennec", log)
	name := utils.GetEnv("DB_NAME", "fennec", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)

	serviceLog.Info("Connecting to Postgres...", "host", host, "db", name)
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to Postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
		return nil, fmt.Errorf("enable pgvector extension: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB { return s.db }

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := s.db.AutoMigrate(
		&types.File{},
		&types.Scene{},
		&types.Embedding{},
		&types.Face{},
		&types.QueueItem{},
		&types.ConfigEntry{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return s.ensureVectorIndexes()
}

// ensureVectorIndexes builds one cosine HNSW index per model partition.
// The embeddings table mixes dimensions across models, so each index is a
// partial index pinned to a model name with a fixed-dimension cast.
func (s *PostgresService) ensureVectorIndexes() error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_embeddings_clip_cosine
		   ON embeddings USING hnsw ((embedding::vector(512)) vector_cosine_ops)
		   WHERE model_name = 'clip'`,
		`CREATE INDEX IF NOT EXISTS idx_embeddings_transcript_cosine
		   ON embeddings USING hnsw ((embedding::vector(384)) vector_cosine_ops)
		   WHERE model_name = 'transcript'`,
		`CREATE INDEX IF NOT EXISTS idx_faces_cosine
		   ON faces USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(stmt).Error; err != nil {
			// Old pgvector builds reject hnsw; queries still work via
			// sequential scan, so log and continue.
			s.log.Warn("vector index creation failed", "error", err)
		}
	}
	return nil
}
