package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ojportal/internal"
	"github.com/starford/ojportal/internal/apperr"
	"github.com/starford/ojportal/internal/mcpserver"
	"github.com/starford/ojportal/internal/session"
	pkgconfig "github.com/starford/ojportal/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

// withPortal opens a portal for a one-shot command. Outside the server
// there is no page to reload, so a forced logout only leaves a hint. A
// logout started by fn is allowed to finish before the portal closes.
func withPortal(ctx context.Context, cmd *cli.Command, fn func(p *internal.Portal) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	nav := session.NavigatorFunc(func(location string) {
		logger.Warn("session expired, run login again", slog.String("location", location))
	})
	p, err := internal.NewPortal(cfg, logger, nav)
	if err != nil {
		return err
	}
	defer p.Close()

	err = fn(p)
	waitCtx, cancel := context.WithTimeout(ctx, cfg.Session.LogoutDelay+time.Second)
	defer cancel()
	if werr := p.Expirer.Wait(waitCtx); werr != nil {
		logger.Debug("pending logout not finished", slog.String("error", werr.Error()))
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func render(ctx context.Context, cmd *cli.Command) error {
	var (
		src []byte
		err error
	)
	switch name := cmd.Args().First(); name {
	case "", "-":
		src, err = io.ReadAll(os.Stdin)
	default:
		src, err = os.ReadFile(name)
	}
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	return withPortal(ctx, cmd, func(p *internal.Portal) error {
		_, err := fmt.Fprintln(os.Stdout, p.Markdown.Render(string(src)))
		return err
	})
}

func login(ctx context.Context, cmd *cli.Command) error {
	return withPortal(ctx, cmd, func(p *internal.Portal) error {
		creds, err := p.Client.Login(ctx, p.Session, cmd.String("username"), cmd.String("password"))
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		p.Logger.Info("signed in",
			slog.String("username", creds.Username),
			slog.String("role", creds.Role))
		return nil
	})
}

func logout(ctx context.Context, cmd *cli.Command) error {
	return withPortal(ctx, cmd, func(p *internal.Portal) error {
		return p.Session.Clear()
	})
}

func whoami(ctx context.Context, cmd *cli.Command) error {
	return withPortal(ctx, cmd, func(p *internal.Portal) error {
		return printJSON(os.Stdout, p.Session.Identity(time.Now()))
	})
}

func get(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("path is required")
	}
	return withPortal(ctx, cmd, func(p *internal.Portal) error {
		var out json.RawMessage
		err := p.Client.Get(ctx, path, &out)
		if errors.Is(err, apperr.ErrUnauthorized) {
			return fmt.Errorf("%w: credentials were cleared, run login again", err)
		}
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, out)
	})
}

func route(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("path is required")
	}
	return withPortal(ctx, cmd, func(p *internal.Portal) error {
		nav, err := p.Router.Navigate(path)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, nav)
	})
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	return withPortal(ctx, cmd, func(p *internal.Portal) error {
		srv := mcpserver.New(mcpserver.Deps{
			Markdown: p.Markdown,
			Avatars:  p.Avatars,
			Router:   p.Router,
			Session:  p.Session,
			Backend:  p.Client,
		})
		return srv.ServeStdio()
	})
}

func main() {
	cmd := &cli.Command{
		Name:   "ojportal",
		Usage:  "Online judge portal: session handling, guarded routes, avatars and statement rendering",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the portal HTTP server",
				Action: serve,
			},
			{
				Name:      "render",
				Usage:     "Render a Markdown statement to sanitized HTML",
				ArgsUsage: "[file|-]",
				Action:    render,
			},
			{
				Name:  "login",
				Usage: "Sign in and store the access token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "username",
						Aliases:  []string{"u"},
						Usage:    "Username or email",
						Required: true,
						Sources:  cli.EnvVars("OJ_USERNAME"),
					},
					&cli.StringFlag{
						Name:     "password",
						Aliases:  []string{"p"},
						Usage:    "Account password",
						Required: true,
						Sources:  cli.EnvVars("OJ_PASSWORD"),
					},
				},
				Action: login,
			},
			{
				Name:   "logout",
				Usage:  "Remove the stored credentials",
				Action: logout,
			},
			{
				Name:   "whoami",
				Usage:  "Describe the stored session",
				Action: whoami,
			},
			{
				Name:      "get",
				Usage:     "Fetch a backend path with the stored token and print the JSON",
				ArgsUsage: "<path>",
				Action:    get,
			},
			{
				Name:      "route",
				Usage:     "Resolve a portal path through the navigation guards",
				ArgsUsage: "<path>",
				Action:    route,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the portal tools over MCP stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
