// Package main loads flag fixtures into the database.
//
// Usage: seed [fixtures.yaml]. Without an argument the bundled demo fixtures
// are used. Seeding is idempotent: ids are derived from keys and names, and
// each flag's variants and targets are replaced.
package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"rollout.io/rollout/internal/config"
	"rollout.io/rollout/internal/constraint"
	"rollout.io/rollout/internal/domain"
	"rollout.io/rollout/internal/infrastructure"
	"rollout.io/rollout/internal/pkg/logger"
	"rollout.io/rollout/internal/repository"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

// seedNamespace scopes the name-based UUIDs of seeded rows.
var seedNamespace = uuid.MustParse("6f1c2a4e-8a57-4c43-9b0e-5d6f3e2b9a10")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	raw := defaultFixtures
	source := "bundled fixtures"
	if len(os.Args) > 1 {
		source = os.Args[1]
		raw, err = os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("read fixtures: %w", err)
		}
	}
	data, err := loadFixtures(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", source, err)
	}

	ctx := context.Background()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	// Migrations are expected to have run (server auto_migrate or rolloutctl migrate).
	repo := repository.NewFlagRepository(db.Pool)

	logger.Info("Starting data seeding...", zap.String("source", source))
	for _, env := range data.Environments {
		if err := repo.SaveEnvironment(ctx, env); err != nil {
			return err
		}
	}
	for _, snap := range data.Flags {
		if err := repo.SaveSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	for _, exp := range data.Experiments {
		if err := repo.SaveExperiment(ctx, exp); err != nil {
			return err
		}
	}

	logger.Info("Data seeding completed successfully",
		zap.Int("environments", len(data.Environments)),
		zap.Int("flags", len(data.Flags)),
		zap.Int("experiments", len(data.Experiments)),
	)
	return nil
}

type fixtureFile struct {
	Environments []fixtureEnvironment `yaml:"environments"`
	Flags        []fixtureFlag        `yaml:"flags"`
	Experiments  []fixtureExperiment  `yaml:"experiments"`
}

type fixtureEnvironment struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type fixtureFlag struct {
	ID          string           `yaml:"id"`
	Key         string           `yaml:"key"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Type        string           `yaml:"type"`
	Enabled     bool             `yaml:"enabled"`
	Variants    []fixtureVariant `yaml:"variants"`
	Targets     []fixtureTarget  `yaml:"targets"`
}

type fixtureVariant struct {
	Key    string `yaml:"key"`
	Weight int    `yaml:"weight"`
}

type fixtureTarget struct {
	Environment string         `yaml:"environment"`
	Percentage  *int           `yaml:"percentage"`
	Constraints map[string]any `yaml:"constraints"`
}

type fixtureExperiment struct {
	ID   string `yaml:"id"`
	Flag string `yaml:"flag"`
	Name string `yaml:"name"`
}

// seedData is the validated content of a fixture file.
type seedData struct {
	Environments []domain.Environment
	Flags        []*domain.FlagSnapshot
	Experiments  []domain.Experiment
}

func stableID(kind, name string) string {
	return uuid.NewSHA1(seedNamespace, []byte(kind+":"+name)).String()
}

func orID(id, kind, name string) string {
	if id != "" {
		return id
	}
	return stableID(kind, name)
}

// loadFixtures decodes and validates a fixture document.
func loadFixtures(raw []byte) (*seedData, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}

	out := &seedData{}
	envs := make(map[string]*domain.Environment, len(f.Environments))
	for _, e := range f.Environments {
		if e.Name == "" {
			return nil, fmt.Errorf("environment without name")
		}
		if _, dup := envs[e.Name]; dup {
			return nil, fmt.Errorf("duplicate environment %q", e.Name)
		}
		env := domain.Environment{ID: orID(e.ID, "environment", e.Name), Name: e.Name}
		out.Environments = append(out.Environments, env)
		envs[e.Name] = &env
	}

	flagIDs := make(map[string]string, len(f.Flags))
	for _, fl := range f.Flags {
		snap, err := buildSnapshot(fl, envs)
		if err != nil {
			return nil, err
		}
		if _, dup := flagIDs[snap.Key]; dup {
			return nil, fmt.Errorf("duplicate flag %q", snap.Key)
		}
		flagIDs[snap.Key] = snap.ID
		out.Flags = append(out.Flags, snap)
	}

	for _, e := range f.Experiments {
		flagID, ok := flagIDs[e.Flag]
		if !ok {
			return nil, fmt.Errorf("experiment %q references unknown flag %q", e.Name, e.Flag)
		}
		out.Experiments = append(out.Experiments, domain.Experiment{
			ID:     orID(e.ID, "experiment", e.Flag+"/"+e.Name),
			FlagID: flagID,
			Name:   e.Name,
		})
	}
	return out, nil
}

func buildSnapshot(fl fixtureFlag, envs map[string]*domain.Environment) (*domain.FlagSnapshot, error) {
	if fl.Key == "" {
		return nil, fmt.Errorf("flag without key")
	}
	flagType := domain.FlagType(fl.Type)
	if !flagType.Valid() {
		return nil, fmt.Errorf("flag %q: unknown type %q", fl.Key, fl.Type)
	}
	name := fl.Name
	if name == "" {
		name = fl.Key
	}

	snap := &domain.FlagSnapshot{
		FeatureFlag: domain.FeatureFlag{
			ID:          orID(fl.ID, "flag", fl.Key),
			Key:         fl.Key,
			Name:        name,
			Description: fl.Description,
			Type:        flagType,
			Enabled:     fl.Enabled,
		},
	}

	for _, v := range fl.Variants {
		if v.Key == "" || v.Weight < 0 {
			return nil, fmt.Errorf("flag %q: variant needs a key and a non-negative weight", fl.Key)
		}
		snap.Variants = append(snap.Variants, domain.FlagVariant{
			ID:     stableID("variant", fl.Key+"/"+v.Key),
			Key:    v.Key,
			Weight: v.Weight,
		})
	}

	for i, t := range fl.Targets {
		target := domain.FlagTarget{
			ID:         stableID("target", fmt.Sprintf("%s/%d", fl.Key, i)),
			Percentage: domain.DefaultPercentage,
		}
		if t.Percentage != nil {
			if *t.Percentage < 0 || *t.Percentage > 100 {
				return nil, fmt.Errorf("flag %q: target percentage %d out of range", fl.Key, *t.Percentage)
			}
			target.Percentage = *t.Percentage
		}
		if t.Environment != "" {
			env, ok := envs[t.Environment]
			if !ok {
				return nil, fmt.Errorf("flag %q: unknown environment %q", fl.Key, t.Environment)
			}
			target.Environment = env
		}
		if t.Constraints != nil {
			rs, err := toRuleSet(t.Constraints)
			if err != nil {
				return nil, fmt.Errorf("flag %q: constraints: %w", fl.Key, err)
			}
			target.Constraints = rs
		}
		snap.Targets = append(snap.Targets, target)
	}
	return snap, nil
}

// toRuleSet reuses the JSON rule decoder for YAML-sourced constraints.
func toRuleSet(v map[string]any) (*constraint.RuleSet, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return constraint.Parse(raw)
}
