package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-api-client/apiclient"
	"github.com/jrsteele09/go-api-client/authapi"
	"github.com/jrsteele09/go-api-client/internal/config"
	"github.com/jrsteele09/go-api-client/tokens"
	"github.com/jrsteele09/go-api-client/tokens/filestore"
	"github.com/jrsteele09/go-api-client/tokens/memstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:  "apiclient",
		Usage: "command line client for the auth API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a YAML config file",
				EnvVars: []string{"API_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file to load before reading the environment",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "api-url",
				Usage: "override the API base URL",
			},
		},
		Before: setup,
	}
	app.Commands = []*cli.Command{
		{
			Name:  "login",
			Usage: "log in with username (or email) and password",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
				&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true, EnvVars: []string{"API_PASSWORD"}},
			},
			Action: runLogin,
		},
		{
			Name:   "logout",
			Usage:  "forget the stored session",
			Action: runLogout,
		},
		{
			Name:   "me",
			Usage:  "show the logged in user",
			Action: runMe,
		},
		{
			Name:  "register",
			Usage: "create an account",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "email", Required: true},
				&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Required: true},
				&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Required: true, EnvVars: []string{"API_PASSWORD"}},
			},
			Action: runRegister,
		},
		{
			Name:  "update-profile",
			Usage: "change profile fields of the logged in user",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "email"},
				&cli.StringFlag{Name: "username"},
				&cli.StringFlag{Name: "full-name"},
				&cli.StringFlag{Name: "avatar-url"},
			},
			Action: runUpdateProfile,
		},
		{
			Name:   "refresh",
			Usage:  "exchange the stored refresh token for a new access token",
			Action: runRefresh,
		},
		{
			Name:   "status",
			Usage:  "show the stored session and when the access token expires",
			Action: runStatus,
		},
		{
			Name:      "oauth-url",
			Usage:     "print the authorization URL for a social login provider",
			ArgsUsage: "<google|github>",
			Action:    runOAuthURL,
		},
		{
			Name:      "oauth-callback",
			Usage:     "store the tokens from an OAuth callback redirect URL",
			ArgsUsage: "<callback-url>",
			Action:    runOAuthCallback,
		},
		{
			Name:   "users",
			Usage:  "list all users (admin)",
			Action: runListUsers,
		},
		{
			Name:      "set-role",
			Usage:     "change a user's role (admin)",
			ArgsUsage: "<user-id> <user|moderator|admin>",
			Action:    runSetRole,
		},
		{
			Name:  "serve-mock",
			Usage: "run an in-memory auth API for local development",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "addr", Value: ":8000"},
				&cli.StringFlag{Name: "admin-user", Value: "admin"},
				&cli.StringFlag{Name: "admin-password", Value: "Admin1234", EnvVars: []string{"MOCK_ADMIN_PASSWORD"}},
				&cli.DurationFlag{Name: "access-ttl", Value: 15 * time.Minute},
			},
			Action: runServeMock,
		},
		{
			Name:   "version",
			Usage:  "print the version",
			Action: runVersion,
		},
	}
	return app
}

type appState struct {
	cfg config.Config
	api *authapi.AuthAPI
}

// setup runs before every command and stashes the wired client in the app metadata.
func setup(cctx *cli.Context) error {
	if err := godotenv.Load(cctx.String("env-file")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load %s: %w", cctx.String("env-file"), err)
	}

	cfg, err := config.Load(cctx.String("config"))
	if err != nil {
		return err
	}
	configureLogging(cfg)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	baseURL := cfg.GetAPIURL()
	if u := cctx.String("api-url"); u != "" {
		baseURL = u
	}
	api, err := authapi.NewClient(apiclient.Config{
		BaseURL: baseURL,
		Timeout: cfg.GetTimeout(),
		OnAuthRecoveryFailed: func() {
			fmt.Fprintln(os.Stderr, "Session expired. Run `apiclient login` to sign in again.")
		},
	},
		apiclient.WithStore(store),
		apiclient.WithLogger(log.Logger.With().Str("component", "apiclient").Logger()),
		apiclient.WithRefreshPath(cfg.GetRefreshPath()),
		apiclient.WithUserAgent("apiclient-cli/"+version),
	)
	if err != nil {
		return err
	}

	if cctx.App.Metadata == nil {
		cctx.App.Metadata = map[string]any{}
	}
	cctx.App.Metadata["state"] = &appState{cfg: cfg, api: api}
	return nil
}

func state(cctx *cli.Context) *appState {
	return cctx.App.Metadata["state"].(*appState)
}

func configureLogging(cfg config.EnvConfig) {
	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Str("env", cfg.GetEnv()).Logger()
}

func openStore(cfg config.ClientConfig) (tokens.Store, error) {
	switch cfg.GetTokenStore() {
	case config.TokenStoreMemory:
		log.Warn().Msg("using in-memory token store; the session will not outlive this command")
		return memstore.New(), nil
	default:
		s, err := filestore.Open(cfg.GetTokenFile())
		if err != nil {
			return nil, fmt.Errorf("open token file: %w", err)
		}
		return s, nil
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

func runVersion(cctx *cli.Context) error {
	displayAppname(state(cctx).cfg.GetAppName())
	fmt.Printf("%s %s\n", strings.ToLower(cctx.App.Name), version)
	return nil
}
