// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unclebandit/survey-escalation/internal/config"
	"github.com/unclebandit/survey-escalation/internal/controller"
	"github.com/unclebandit/survey-escalation/internal/model"
	"github.com/unclebandit/survey-escalation/internal/repository"
	"github.com/unclebandit/survey-escalation/internal/service"
)

type seedFile struct {
	Surveys []seedSurvey `yaml:"surveys"`
}

type seedSurvey struct {
	ID         string           `yaml:"id"`
	Title      string           `yaml:"title"`
	Questions  []model.Question `yaml:"questions"`
	StartDate  string           `yaml:"start_date"`
	EndDate    string           `yaml:"end_date"`
	Timezone   string           `yaml:"timezone"`
	Escalation *struct {
		Enabled bool   `yaml:"enabled"`
		Delay   string `yaml:"delay"`
	} `yaml:"escalation"`
}

func main() {
	cfg := config.Load()

	store, closeStore, err := repository.OpenStore(cfg.DBDriver, cfg.DSN())
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	seedFiles := os.Args[1:]
	if len(seedFiles) == 0 {
		seedFiles = []string{"seed/surveys.yaml"}
	}

	svc := &service.SurveyService{Surveys: store}
	for _, file := range seedFiles {
		surveys, err := loadSeedFile(file, cfg.Policy.DefaultEscalationDelay)
		if err != nil {
			log.Fatalf("failed to read %s: %v", file, err)
		}
		for _, s := range surveys {
			if err := svc.SaveSurvey(context.Background(), s); err != nil {
				log.Fatalf("failed to save survey %q from %s: %v", s.Title, file, err)
			}
			fmt.Printf("Seeded survey %s (%s)\n", s.SurveyID, s.Title)
		}
	}

	fmt.Println("Database seeding completed successfully!")
}

// loadSeedFile parses a YAML list of survey definitions. Surveys without an
// escalation block escalate after defaultDelay.
func loadSeedFile(path string, defaultDelay time.Duration) ([]*model.Survey, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f seedFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	surveys := make([]*model.Survey, 0, len(f.Surveys))
	for i, s := range f.Surveys {
		start, err := controller.ParseDate(s.StartDate)
		if err != nil {
			return nil, fmt.Errorf("survey %d: %w", i, err)
		}
		end, err := controller.ParseDate(s.EndDate)
		if err != nil {
			return nil, fmt.Errorf("survey %d: %w", i, err)
		}
		survey := &model.Survey{
			SurveyID:          s.ID,
			Title:             s.Title,
			Questions:         s.Questions,
			StartDate:         start,
			EndDate:           end,
			Timezone:          s.Timezone,
			EscalationEnabled: true,
			EscalationDelay:   defaultDelay,
		}
		if s.Escalation != nil {
			survey.EscalationEnabled = s.Escalation.Enabled
			if s.Escalation.Delay != "" {
				d, err := time.ParseDuration(s.Escalation.Delay)
				if err != nil {
					return nil, fmt.Errorf("survey %d: escalation delay: %w", i, err)
				}
				survey.EscalationDelay = d
			}
		}
		surveys = append(surveys, survey)
	}
	return surveys, nil
}
