package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/questionbank"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// seed-questions replaces the questions table with a JSON bank file, for
// servers running with QUESTION_SOURCE=postgres.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	path := flag.String("file", cfg.QuestionFile, "question bank JSON file")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	questions, err := questionbank.FileLoader{Path: *path}.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Str("file", *path).Msg("Failed to load question bank")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	if err := repository.NewQuestionRepository(pool).ReplaceBank(ctx, questions); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed question bank")
	}

	fmt.Printf("Seed completed! Stored %d questions from %s.\n", len(questions), *path)
}
