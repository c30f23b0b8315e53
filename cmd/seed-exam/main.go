package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

func main() {
	var (
		title     string
		subject   string
		token     string
		duration  int
		questions int
	)
	flag.StringVar(&title, "title", "Latihan Matematika", "Exam title")
	flag.StringVar(&subject, "subject", "Matematika", "Exam subject")
	flag.StringVar(&token, "token", "STEMSI", "Entry token students must type")
	flag.IntVar(&duration, "duration", 60, "Duration in minutes")
	flag.IntVar(&questions, "questions", 10, "Number of questions")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)

	fmt.Printf("=== Seeding exam %q with %d questions ===\n", title, questions)

	exam := &model.Exam{
		Title:           title,
		Subject:         subject,
		DurationMinutes: duration,
		IsActive:        true,
		EntryToken:      token,
	}

	qs := make([]model.Question, questions)
	for i := range qs {
		a, b := i+2, i+3
		qs[i] = model.Question{
			QuestionText:  fmt.Sprintf("Berapakah $%d \\times %d$?", a, b),
			Options:       []string{fmt.Sprint(a * b), fmt.Sprint(a + b), fmt.Sprint(a*b + 1), fmt.Sprint(a*b - 1)},
			CorrectOption: 0,
			SortOrder:     i + 1,
		}
		// Rotate the correct option so it is not always "A".
		shift := i % 4
		qs[i].Options = append(qs[i].Options[shift:], qs[i].Options[:shift]...)
		qs[i].CorrectOption = (4 - shift) % 4
	}

	if err := examRepo.Create(ctx, exam, qs); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed exam")
	}

	fmt.Printf("\nSeed completed! Exam ID: %s, entry token: %s\n", exam.ID, exam.EntryToken)
}
