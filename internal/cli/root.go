package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// DefaultAPIURL — адрес API по умолчанию.
const DefaultAPIURL = "http://localhost:8080"

// NewRootCmd собирает корневую команду wikiops.
// stdout и stderr задают потоки Output.
func NewRootCmd(version string, stdout, stderr io.Writer) *cobra.Command {
	var apiURL string
	var token string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "wikiops",
		Short:         "wikiops CLI — scheduler and job administration",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("WIKIOPS_API_URL", DefaultAPIURL), "API server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("WIKIOPS_TOKEN"), "Admin bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *Client { return NewClient(apiURL, token) }
	outputFn := func() *Output { return NewOutput(jsonOutput, stdout, stderr) }

	rootCmd.AddCommand(
		NewStatusCmd(clientFn, outputFn),
		NewStartCmd(clientFn, outputFn),
		NewStopCmd(clientFn, outputFn),
		NewRunCmd(clientFn, outputFn),
		NewHistoryCmd(clientFn, outputFn),
	)

	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
