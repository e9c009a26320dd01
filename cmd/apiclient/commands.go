package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jrsteele09/go-api-client/apiclient"
	"github.com/jrsteele09/go-api-client/authapi"
	"github.com/jrsteele09/go-api-client/internal/mockapi"
	"github.com/jrsteele09/go-api-client/internal/utils"
	"github.com/jrsteele09/go-api-client/tokens"
	"github.com/jrsteele09/go-api-client/users"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func runLogin(cctx *cli.Context) error {
	api := state(cctx).api
	_, err := api.Login(cctx.Context, authapi.LoginRequest{
		Username: cctx.String("username"),
		Password: cctx.String("password"),
	})
	if err != nil {
		return describe(err)
	}
	me, err := api.Me(cctx.Context)
	if err != nil {
		return describe(err)
	}
	if name := utils.Value(me.FullName); name != "" {
		fmt.Printf("Logged in as %s <%s> (%s)\n", name, me.Username, me.Role)
		return nil
	}
	fmt.Printf("Logged in as %s (%s)\n", me.Username, me.Role)
	return nil
}

func runLogout(cctx *cli.Context) error {
	if err := state(cctx).api.Logout(); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func runMe(cctx *cli.Context) error {
	me, err := state(cctx).api.Me(cctx.Context)
	if err != nil {
		return describe(err)
	}
	return printJSON(me)
}

func runRegister(cctx *cli.Context) error {
	password := cctx.String("password")
	if err := users.ValidatePasswordStrength(password); err != nil {
		log.Warn().Msgf("weak password: %s", err)
	}
	u, err := state(cctx).api.Register(cctx.Context, users.UserCreate{
		Email:    cctx.String("email"),
		Username: cctx.String("username"),
		Password: password,
	})
	if err != nil {
		return describe(err)
	}
	return printJSON(u)
}

func runUpdateProfile(cctx *cli.Context) error {
	upd := users.ProfileUpdate{
		Email:     utils.NonZeroPtr(cctx.String("email")),
		Username:  utils.NonZeroPtr(cctx.String("username")),
		FullName:  utils.NonZeroPtr(cctx.String("full-name")),
		AvatarURL: utils.NonZeroPtr(cctx.String("avatar-url")),
	}
	if upd == (users.ProfileUpdate{}) {
		return errors.New("nothing to update: pass at least one of --email, --username, --full-name, --avatar-url")
	}

	u, err := state(cctx).api.UpdateProfile(cctx.Context, upd)
	if err != nil {
		return describe(err)
	}
	return printJSON(u)
}

func runRefresh(cctx *cli.Context) error {
	access, err := state(cctx).api.Client().Refresh(cctx.Context)
	if err != nil {
		return describe(err)
	}
	if c, err := tokens.ParseClaims(access); err == nil && !c.ExpiresAt.IsZero() {
		fmt.Printf("Access token refreshed, expires %s\n", c.ExpiresAt.Local().Format(time.RFC1123))
		return nil
	}
	fmt.Println("Access token refreshed")
	return nil
}

func runStatus(cctx *cli.Context) error {
	client := state(cctx).api.Client()
	fmt.Printf("API:           %s\n", client.BaseURL())

	access, ok := client.AccessToken()
	if !ok {
		fmt.Println("Session:       none")
		return nil
	}
	_, hasRefresh := client.RefreshToken()
	fmt.Printf("Refresh token: %t\n", hasRefresh)

	claims, err := tokens.ParseClaims(access)
	if err != nil {
		fmt.Println("Access token:  opaque")
		return nil
	}
	fmt.Printf("Subject:       %s\n", claims.Subject)
	switch {
	case claims.ExpiresAt.IsZero():
		fmt.Println("Access token:  no expiry")
	case claims.Expired(time.Now()):
		fmt.Printf("Access token:  expired %s ago\n", time.Since(claims.ExpiresAt).Round(time.Second))
	default:
		fmt.Printf("Access token:  valid for %s\n", time.Until(claims.ExpiresAt).Round(time.Second))
	}
	return nil
}

func runOAuthURL(cctx *cli.Context) error {
	provider := cctx.Args().First()
	if provider == "" {
		return errors.New("provider is required (google or github)")
	}
	u, err := state(cctx).api.OAuthURL(cctx.Context, authapi.OAuthProvider(provider))
	if err != nil {
		return describe(err)
	}
	fmt.Println(u)
	return nil
}

func runOAuthCallback(cctx *cli.Context) error {
	callback := cctx.Args().First()
	if callback == "" {
		return errors.New("callback URL is required")
	}
	ok, err := state(cctx).api.HandleOAuthCallback(callback)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("callback URL has no access_token and refresh_token")
	}
	fmt.Println("Session stored")
	return nil
}

func runListUsers(cctx *cli.Context) error {
	list, err := state(cctx).api.ListUsers(cctx.Context)
	if err != nil {
		return describe(err)
	}
	return printJSON(list)
}

func runSetRole(cctx *cli.Context) error {
	if cctx.NArg() != 2 {
		return errors.New("usage: set-role <user-id> <role>")
	}
	id, err := strconv.Atoi(cctx.Args().Get(0))
	if err != nil {
		return fmt.Errorf("user id %q: %w", cctx.Args().Get(0), err)
	}
	role, err := users.ParseRole(cctx.Args().Get(1))
	if err != nil {
		return err
	}
	u, err := state(cctx).api.UpdateUserRole(cctx.Context, id, role)
	if err != nil {
		return describe(err)
	}
	return printJSON(u)
}

func runServeMock(cctx *cli.Context) error {
	srv := mockapi.New(
		mockapi.WithLogger(log.Logger.With().Str("component", "mockapi").Logger()),
		mockapi.WithTokenExpiry(cctx.Duration("access-ttl"), 7*24*time.Hour),
	)
	admin, err := srv.AddUser(users.UserCreate{
		Email:    cctx.String("admin-user") + "@localhost",
		Username: cctx.String("admin-user"),
		Password: cctx.String("admin-password"),
	}, users.RoleAdmin)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Info().Str("username", admin.Username).Msg("seeded admin user")
	for _, r := range srv.Routes() {
		log.Debug().Str("route", r).Msg("registered route")
	}

	displayAppname("mock api")
	server := &http.Server{Addr: cctx.String("addr"), Handler: srv}
	errCh := make(chan error, 1)
	go func() {
		errCh <- listenAndServe(server)
	}()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("mock api listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("mock api stopped")
	return nil
}

// describe turns API failures into messages fit for a terminal.
func describe(err error) error {
	if errors.Is(err, apiclient.ErrAuthRecoveryFailed) {
		return errors.New("session expired, log in again")
	}
	var he *apiclient.HTTPError
	if errors.As(err, &he) {
		switch {
		case he.StatusCode == http.StatusUnauthorized:
			if d := he.Detail(); d != "" {
				return fmt.Errorf("unauthorized: %s", d)
			}
			return errors.New("unauthorized: log in first")
		case he.Detail() != "":
			return fmt.Errorf("%s (HTTP %d)", he.Detail(), he.StatusCode)
		}
	}
	var te *apiclient.TimeoutError
	if errors.As(err, &te) {
		return fmt.Errorf("API did not respond within %s", te.Timeout)
	}
	var ne *apiclient.NetworkError
	if errors.As(err, &ne) {
		return fmt.Errorf("cannot reach API at %s: %w", ne.URL, ne.Err)
	}
	return err
}
