// Package main provides a CI-friendly smoke test for the notebox auth API.
//
// It validates:
//   - liveness and readiness probes
//   - register -> profile with the issued token
//   - refresh rotates the stored token
//   - folder create/list/delete through the refreshing client
//   - change-password, wrong-password login, login with the new password
//   - account deletion makes refresh fail with USER_NOT_FOUND
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"notebox/cmd/internal/client/apiclient"
	"notebox/cmd/internal/client/credstore"
	"notebox/cmd/internal/client/sessionclient"
	v1 "notebox/shared/contracts/auth/v1"
)

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "API base URL")
		timeout = flag.Duration("timeout", 10*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	logOut := io.Discard
	if *verbose {
		logOut = os.Stderr
	}
	log := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug}))

	root := context.Background()
	store, err := credstore.Open(root, credstore.MemoryPath, log)
	if err != nil {
		fatalf("credstore: %v", err)
	}
	defer store.Close()

	sc, err := sessionclient.New(*baseURL, store, sessionclient.WithLogger(log), sessionclient.WithTimeout(*timeout))
	if err != nil {
		fatalf("client: %v", err)
	}
	api := apiclient.New(sc)

	step := func(name string, fn func(ctx context.Context) error) {
		ctx, cancel := context.WithTimeout(root, *timeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			fatalf("%s: %v", name, err)
		}
		if *verbose {
			fmt.Fprintf(os.Stderr, "ok   %-22s %s\n", name, time.Since(start).Round(time.Millisecond))
		}
	}

	email := "smoke-" + uuid.NewString()[:8] + "@example.com"
	const pw1, pw2 = "smoke-pass-1", "smoke-pass-2"

	step("healthz", func(ctx context.Context) error { return probe(ctx, *baseURL+"/healthz") })
	step("readyz", func(ctx context.Context) error { return probe(ctx, *baseURL+"/readyz") })

	var first v1.SessionResponse
	step("register", func(ctx context.Context) error {
		first, err = api.Register(ctx, v1.RegisterRequest{Name: "Smoke", Email: email, Password: pw1})
		if err != nil {
			return err
		}
		if !credstore.WellFormed(first.Token) {
			return fmt.Errorf("token is not three segments: %q", first.Token)
		}
		return store.Save(ctx, first.Token, first.User)
	})

	step("profile", func(ctx context.Context) error {
		u, err := api.Profile(ctx)
		if err != nil {
			return err
		}
		if u.ID != first.User.ID || !strings.EqualFold(u.Email, email) {
			return fmt.Errorf("profile mismatch: got %+v want %+v", u, first.User)
		}
		return nil
	})

	step("refresh", func(ctx context.Context) error {
		// Tokens minted within the same second differ only by jti.
		rec, err := sc.Refresh(ctx)
		if err != nil {
			return err
		}
		if rec.Token == first.Token {
			return errors.New("refresh returned the same token")
		}
		if got := store.Load(ctx).Token; got != rec.Token {
			return errors.New("refreshed token not persisted")
		}
		return nil
	})

	step("folders", func(ctx context.Context) error {
		f, err := api.CreateFolder(ctx, "Smoke")
		if err != nil {
			return err
		}
		if _, err := api.CreateFolder(ctx, "smoke"); !sessionclient.HasCode(err, v1.CodeFolderExists) {
			return fmt.Errorf("duplicate folder: want %s, got %v", v1.CodeFolderExists, err)
		}
		list, err := api.Folders(ctx)
		if err != nil {
			return err
		}
		if len(list) != 1 || list[0].ID != f.ID {
			return fmt.Errorf("folder list mismatch: %+v", list)
		}
		return api.DeleteFolder(ctx, f.ID)
	})

	step("change-password", func(ctx context.Context) error {
		return api.ChangePassword(ctx, v1.ChangePasswordRequest{OldPassword: pw1, NewPassword: pw2})
	})

	step("login-wrong-password", func(ctx context.Context) error {
		_, err := api.Login(ctx, v1.LoginRequest{Email: email, Password: pw1})
		e, ok := sessionclient.AsError(err)
		if !ok || e.Status != http.StatusUnauthorized || e.Code != v1.CodeInvalidCredentials {
			return fmt.Errorf("want 401 %s, got %v", v1.CodeInvalidCredentials, err)
		}
		return nil
	})

	step("login", func(ctx context.Context) error {
		resp, err := api.Login(ctx, v1.LoginRequest{Email: email, Password: pw2})
		if err != nil {
			return err
		}
		return store.Save(ctx, resp.Token, resp.User)
	})

	step("delete-account", func(ctx context.Context) error {
		if err := api.DeleteAccount(ctx); err != nil {
			return err
		}
		_, err := sc.Refresh(ctx)
		if !sessionclient.HasCode(err, v1.CodeUserNotFound) {
			return fmt.Errorf("refresh after delete: want %s, got %v", v1.CodeUserNotFound, err)
		}
		if !store.Load(ctx).Empty() {
			return errors.New("credentials not cleared after failed refresh")
		}
		return nil
	})

	fmt.Println("PASS")
}

func probe(ctx context.Context, u string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
