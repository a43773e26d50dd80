package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/EasyAdvertisers/alfreyaa-app/internal/domain"
	apiclient "github.com/EasyAdvertisers/alfreyaa-app/pkg/api/client"
	"golang.org/x/term"
)

type cliConfig struct {
	APIBaseURL  string `json:"api_base_url"`
	AccessToken string `json:"access_token"`
	SessionID   string `json:"session_id"`
}

var buildVersion = "dev"

const defaultAPIBase = "http://localhost:4100"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "signup":
		err = commandSignup(args)
	case "login":
		err = commandLogin(args)
	case "ask":
		err = commandAsk(args)
	case "deploy":
		err = commandDeploy(args)
	case "history":
		err = commandHistory(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandSignup(args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBase+")")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}

	secret, err := resolvePassword(*password)
	if err != nil {
		return err
	}

	cfg := mergedConfig(*apiBase)
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	resp, err := client.Signup(ctx, *email, secret)
	if err != nil {
		return err
	}

	cfg.AccessToken = resp.Tokens.AccessToken
	cfg.SessionID = resp.User.ID
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Account created for %s\n", resp.User.Email)
	return nil
}

func commandLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (supply to avoid prompt)")
	apiBase := fs.String("api", "", "API base URL (default "+defaultAPIBase+")")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" {
		return errors.New("--email is required")
	}

	secret, err := resolvePassword(*password)
	if err != nil {
		return err
	}

	cfg := mergedConfig(*apiBase)
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	resp, err := client.Login(ctx, *email, secret)
	if err != nil {
		return err
	}

	cfg.AccessToken = resp.Tokens.AccessToken
	cfg.SessionID = resp.User.ID
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Logged in as %s\n", resp.User.Email)
	return nil
}

func commandAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	session := fs.String("session", "", "Session ID (defaults to your account session)")
	timeout := fs.Duration("timeout", 5*time.Minute, "How long to wait for a result")
	fs.Parse(args)

	command := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if command == "" {
		return errors.New("usage: alfreya ask <your message>")
	}
	return submitAndStream(*session, command, *timeout)
}

func commandDeploy(args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	session := fs.String("session", "", "Session ID (defaults to your account session)")
	timeout := fs.Duration("timeout", 10*time.Minute, "How long to wait for the run to finish")
	fs.Parse(args)

	return submitAndStream(*session, "deploy the site", *timeout)
}

func submitAndStream(session, command string, timeout time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.AccessToken == "" {
		return errors.New("not logged in; run: alfreya login --email you@example.com")
	}
	sessionID := strings.TrimSpace(session)
	if sessionID == "" {
		sessionID = cfg.SessionID
	}

	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Open the event stream before submitting so no event is missed.
	streamErr := make(chan error, 1)
	var submissionID string
	ready := make(chan string, 1)
	go func() {
		streamErr <- client.StreamEvents(ctx, cfg.AccessToken, sessionID, func(event domain.Event) {
			target := submissionID
			select {
			case id := <-ready:
				submissionID = id
				target = id
			default:
			}
			if target != "" && event.SubmissionID != target {
				return
			}
			switch event.Type {
			case domain.EventProgress:
				if event.Progress != nil {
					fmt.Printf("[%s] %s\n", event.Progress.Status, event.Progress.Message)
					if event.Progress.Status.Terminal() {
						cancel()
					}
				}
			case domain.EventResult:
				if event.Result != nil {
					printResult(*event.Result)
				}
				cancel()
			}
		})
	}()
	time.Sleep(200 * time.Millisecond)

	sub, err := client.Submit(ctx, cfg.AccessToken, sessionID, command)
	if err != nil {
		cancel()
		return err
	}
	ready <- sub.SubmissionID

	err = <-streamErr
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if ctx.Err() == context.DeadlineExceeded {
		return errors.New("timed out waiting for a result")
	}
	return nil
}

func commandHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	session := fs.String("session", "", "Session ID (defaults to your account session)")
	limit := fs.Int("limit", 20, "Maximum turns to show")
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.AccessToken == "" {
		return errors.New("not logged in; run: alfreya login --email you@example.com")
	}
	sessionID := strings.TrimSpace(*session)
	if sessionID == "" {
		sessionID = cfg.SessionID
	}

	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	turns, err := client.History(ctx, cfg.AccessToken, sessionID, *limit)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Println("No conversation yet.")
		return nil
	}
	for _, turn := range turns {
		label := "you"
		if turn.Role == "assistant" {
			label = "alfreya"
		}
		fmt.Printf("%s  %-7s  %s\n", turn.CreatedAt.Local().Format("2006-01-02 15:04"), label, turn.Text)
	}
	return nil
}

func printResult(result domain.Result) {
	if result.Text != "" {
		fmt.Println(result.Text)
	}
	for _, source := range result.Sources {
		if source.Title != "" {
			fmt.Printf("  source: %s (%s)\n", source.Title, source.URI)
		} else {
			fmt.Printf("  source: %s\n", source.URI)
		}
	}
	if result.Image != nil {
		path, err := saveImage(*result.Image)
		if err != nil {
			fmt.Fprintf(os.Stderr, "save image: %v\n", err)
		} else {
			fmt.Printf("Image saved to %s\n", path)
		}
	}
	if result.Proposal != nil {
		for _, change := range result.Proposal.Changes {
			fmt.Printf("  %s: %s\n", change.File, change.Reason)
		}
	}
	if result.Deployment != nil && result.Deployment.URL != "" {
		fmt.Printf("  url: %s\n", result.Deployment.URL)
	}
}

func saveImage(image domain.ImageRef) (string, error) {
	data, err := base64.StdEncoding.DecodeString(image.Data)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	ext := ".png"
	if image.MimeType == "image/jpeg" {
		ext = ".jpg"
	}
	path := fmt.Sprintf("alfreya-%s%s", time.Now().Format("20060102-150405"), ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func resolvePassword(flagValue string) (string, error) {
	secret := strings.TrimSpace(flagValue)
	if secret != "" {
		return secret, nil
	}
	fmt.Print("Password: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Print("\n")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(bytes), nil
}

func mergedConfig(apiBase string) cliConfig {
	cfg, _ := loadConfig()
	if strings.TrimSpace(apiBase) != "" {
		cfg.APIBaseURL = apiBase
	} else if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBase}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "alfreya", "config.json"), nil
}

func printUsage() {
	fmt.Printf("alfreya CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	alfreya signup --email user@example.com [--password secret] [--api http://localhost:4100]
	alfreya login --email user@example.com [--password secret] [--api http://localhost:4100]
	alfreya ask <message>            talk to the assistant
	alfreya deploy                   deploy the current site and follow progress
	alfreya history [--limit N]      show the conversation transcript
	alfreya version
`)
}

func printVersion() {
	fmt.Printf("alfreya %s\n", buildVersion)
}
