package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/service"
)

func main() {
	var (
		learners int
		password string
	)
	flag.IntVar(&learners, "learners", 20, "Number of demo learners to create")
	flag.StringVar(&password, "password", "stemsijaya", "Password for every demo learner")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	learnerRepo := repository.NewLearnerRepository(pool)
	testRepo := repository.NewTestRepository(pool)
	authService := service.NewAuthService(cfg, nil, learnerRepo)

	// ─── Author ────────────────────────────────────────────────────────
	authorHash, err := authService.HashPassword(password)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}
	author := &model.Learner{Email: "proctor@demo.local", Name: "Demo Proctor", PasswordHash: authorHash, IsAdmin: true}
	if err := learnerRepo.Create(ctx, author); err != nil {
		if !errors.Is(err, repository.ErrDuplicateEmail) {
			log.Fatal().Err(err).Msg("Failed to create demo proctor")
		}
		existing, err := learnerRepo.GetByEmail(ctx, author.Email)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load demo proctor")
		}
		author = existing
	}
	fmt.Printf("Proctor: %s (ID %d)\n", author.Email, author.ID)

	// ─── Test ──────────────────────────────────────────────────────────
	def := demoTest()
	if fields := service.ValidateDefinition(def); fields != nil {
		log.Fatal().Err(fields).Msg("Demo test is invalid")
	}
	switch err := testRepo.Create(ctx, def, author.ID); {
	case err == nil:
		fmt.Printf("Created test %q with %d questions\n", def.ID, def.TotalQuestions())
	case errors.Is(err, repository.ErrDuplicateTest):
		fmt.Printf("Test %q already exists\n", def.ID)
	default:
		log.Fatal().Err(err).Msg("Failed to create demo test")
	}

	// ─── Learners ──────────────────────────────────────────────────────
	fmt.Printf("=== Seeding %d Learners ===\n", learners)

	successCount := 0
	for i := 0; i < learners; i++ {
		hash, err := authService.HashPassword(password)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash password")
		}
		l := &model.Learner{
			Email:        fmt.Sprintf("learner%d@demo.local", i+1),
			Name:         fmt.Sprintf("Learner %d", i+1),
			PasswordHash: hash,
		}
		if err := learnerRepo.Create(ctx, l); err != nil {
			fmt.Printf("Error creating learner %s: %v\n", l.Email, err)
			continue
		}
		successCount++
		if (i+1)%10 == 0 {
			fmt.Printf("Created %d learners...\n", i+1)
		}
	}

	fmt.Printf("\nSeed completed! Successfully added %d/%d learners.\n", successCount, learners)
}

func demoTest() *model.TestDefinition {
	global := 30
	atoms := 10
	q := func(id, section, text string, options ...string) model.Question {
		return model.Question{ID: id, SectionID: section, Text: text, Options: options}
	}
	return &model.TestDefinition{
		ID:          "demo-chemistry",
		Title:       "Chemistry Basics",
		Description: "A short demonstration test.",
		Instructions: []string{
			"The test runs in fullscreen.",
			"Leaving the test tab is recorded as a violation.",
			"The atoms section has its own 10 minute limit.",
		},
		GlobalTimeLimitMinutes: &global,
		Sections: []model.Section{
			{
				ID:               "atoms",
				Title:            "Atoms",
				TimeLimitMinutes: &atoms,
				Questions: []model.Question{
					q("atoms-1", "atoms", "Which particle carries a negative charge?", "Proton", "Neutron", "Electron"),
					q("atoms-2", "atoms", "What is the atomic number of carbon?", "6", "12", "14"),
				},
			},
			{
				ID:    "bonds",
				Title: "Chemical Bonds",
				Questions: []model.Question{
					q("bonds-1", "bonds", "Which bond shares electron pairs?", "Ionic", "Covalent", "Metallic"),
					q("bonds-2", "bonds", "What holds NaCl together?", "Ionic bonds", "Hydrogen bonds"),
				},
			},
		},
	}
}
