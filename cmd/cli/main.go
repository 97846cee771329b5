package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/nimasrn/support-inbox/internal/config"
	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/repository"
	"github.com/nimasrn/support-inbox/migrations"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/pg"
)

// usage:
//
//	cli migrate [--env=.env] [--dir=./migrations]
//	cli seed [--env=.env]
func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pgConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	switch command() {
	case "migrate":
		err = migrate(pgConf)
	case "seed":
		err = seed(pgConf)
	default:
		logger.Error("unknown command, expected migrate or seed", "args", os.Args[1:])
		os.Exit(2)
	}
	if err != nil {
		logger.Error("cli command failed", "command", command(), "error", err)
		os.Exit(1)
	}
}

func migrate(pgConf pg.Config) error {
	// an explicit --dir reads migrations from disk, otherwise the embedded set is used
	if dir := getMigrationPath(); dir != "" {
		return pg.Migrate(pgConf, nil, dir)
	}
	return pg.Migrate(pgConf, migrations.FS, ".")
}

// seed creates a demo tag, template and rules so a local setup has something to
// match against.
func seed(pgConf pg.Config) error {
	gdb, err := pg.Create(pgConf, false)
	if err != nil {
		return err
	}
	db := pg.New(gdb, gdb)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tag, err := repository.NewTagRepository(db).Create(ctx, "billing", nil)
	if err != nil {
		return err
	}
	tpl, err := repository.NewTemplateRepository(db).Create(ctx, "ack",
		"Hi {name}, thanks for reaching out. We will get back to you shortly.")
	if err != nil {
		return err
	}

	rules := repository.NewRuleRepository(db)
	pending := model.ThreadStatusPending
	cooldown := 600
	for _, r := range []*model.AutomationRule{
		{
			Name: "billing keywords", Enabled: true, Priority: 10,
			MatchType: model.MatchRegex, MatchValue: `\b(invoice|refund|charge)\b`,
			Actions: model.RuleActions{ApplyTag: &tag.ID, SetStatus: &pending},
		},
		{
			Name: "acknowledge", Enabled: true, Priority: 0,
			MatchType: model.MatchContains, MatchValue: "",
			Actions: model.RuleActions{AutoReplyTemplateID: &tpl.ID, AutoReplyCooldownSeconds: &cooldown},
		},
	} {
		created, err := rules.Create(ctx, r)
		if err != nil {
			return err
		}
		logger.Info("seeded rule", "id", created.ID, "name", created.Name)
	}
	return nil
}

func command() string {
	for _, v := range os.Args[1:] {
		if !strings.HasPrefix(v, "--") {
			return v
		}
	}
	return "migrate"
}

func getEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Stat(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	if _, err := os.Stat(".env"); err != nil {
		return ""
	}
	return ".env"
}

func getMigrationPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--dir=") {
			s := strings.Split(v, "=")
			if _, err := os.Stat(s[1]); err != nil {
				logger.Error("failed to open the passed migrations dir, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
