// jira-screens prints, for every issue type of a Jira project, the screen
// and fields the create-issue form uses. Run it when the project's screens
// change to find the custom field ids the bot must fill.
//
// Credentials come from ATLASSIAN_USER and ATLASSIAN_API_KEY, the same
// variables the bot reads.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/its-the-vibe/JiraBolt/internal/tracker"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	_ = godotenv.Load(".env")

	var (
		project string
		baseURL string
		timeout time.Duration
	)
	flagSet := pflag.NewFlagSet("jira-screens", pflag.ContinueOnError)
	flagSet.StringVarP(&project, "project", "p", "PI", "Jira project key whose screens to inspect")
	flagSet.StringVar(&baseURL, "base-url", envOr("ATLASSIAN_BASE_URL", "https://wantedlab.atlassian.net"), "Jira site URL")
	flagSet.DurationVar(&timeout, "timeout", 2*time.Minute, "overall request timeout")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	user, key := os.Getenv("ATLASSIAN_USER"), os.Getenv("ATLASSIAN_API_KEY")
	if user == "" || key == "" {
		return errors.New("ATLASSIAN_USER and ATLASSIAN_API_KEY must be set")
	}

	client, err := tracker.New(tracker.Config{BaseURL: baseURL, Username: user, APIKey: key})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	screens, err := client.ScreenConfiguration(ctx, project)
	if err != nil {
		return err
	}
	if len(screens) == 0 {
		return fmt.Errorf("no screens named %q found", project+": ...")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(screens)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
