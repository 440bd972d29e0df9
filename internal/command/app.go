package command

import (
	"context"
	"errors"
	"strings"

	"github.com/urfave/cli/v2"

	"ideaflow/cli/internal/config"
)

type Deps struct {
	LoadConfig   func() config.Config
	RunOpen      func(ctx context.Context, cfg config.Config, ideaID, phaseOverride string) error
	RunMigrateUp func(context.Context, config.Config) error
	SetPause     func(ctx context.Context, cfg config.Config, pause bool) error
}

func BuildApp(deps Deps) *cli.App {
	return &cli.App{
		Name:  "ideaflow",
		Usage: "idea workflow agent client",
		Commands: []*cli.Command{
			{
				Name:      "open",
				Usage:     "open a workspace for an idea (omit the id for a new idea)",
				ArgsUsage: "[idea-id]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "phase",
						Usage: "override the initial phase (ideation|planning|executing)",
					},
				},
				Action: func(ctx *cli.Context) error {
					cfg := loadConfig(deps)
					if deps.RunOpen == nil {
						return errors.New("open runner is not configured")
					}
					return deps.RunOpen(ctx.Context, cfg, strings.TrimSpace(ctx.Args().First()), ctx.String("phase"))
				},
			},
			{
				Name:  "prefs",
				Usage: "manage user preferences",
				Subcommands: []*cli.Command{
					{
						Name:      "pause",
						Usage:     "set pause-between-phases (on|off)",
						ArgsUsage: "on|off",
						Action: func(ctx *cli.Context) error {
							cfg := loadConfig(deps)
							if deps.SetPause == nil {
								return errors.New("prefs runner is not configured")
							}
							switch strings.ToLower(strings.TrimSpace(ctx.Args().First())) {
							case "on":
								return deps.SetPause(ctx.Context, cfg, true)
							case "off":
								return deps.SetPause(ctx.Context, cfg, false)
							default:
								return errors.New("expected on or off")
							}
						},
					},
				},
			},
			{
				Name:  "migrate",
				Usage: "run archive database migration",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply pending migrations",
						Action: func(ctx *cli.Context) error {
							cfg := loadConfig(deps)
							if deps.RunMigrateUp == nil {
								return errors.New("migrate runner is not configured")
							}
							return deps.RunMigrateUp(ctx.Context, cfg)
						},
					},
				},
			},
		},
	}
}

func loadConfig(deps Deps) config.Config {
	if deps.LoadConfig != nil {
		return deps.LoadConfig()
	}
	return config.LoadConfig()
}
