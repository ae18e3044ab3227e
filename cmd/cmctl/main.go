package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/content-core/pkg/contentcore/rpc"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cmctl",
		Short: "Content core CLI",
		Long: `Content core command line interface

Calls the content management RPC endpoint of a running server. Every
command is a single POST to /api/content_management/rpc.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("server", getEnv("CONTENT_SERVER", "http://localhost:8080"), "server base URL")
	rootCmd.PersistentFlags().StringP("type", "t", "", "content type")
	rootCmd.PersistentFlags().Bool("json", false, "print raw JSON results")

	rootCmd.AddCommand(NewGetCommand())
	rootCmd.AddCommand(NewCreateCommand())
	rootCmd.AddCommand(NewUpdateCommand())
	rootCmd.AddCommand(NewDeleteCommand())
	rootCmd.AddCommand(NewSearchCommand())
	rootCmd.AddCommand(NewMSearchCommand())
	rootCmd.AddCommand(NewCallCommand())

	return rootCmd
}

// NewClientFromFlags creates an RPC client for --server
func NewClientFromFlags(cmd *cobra.Command) *rpc.Client {
	server, _ := cmd.Flags().GetString("server")
	return rpc.NewClient(server)
}

func contentTypeFlag(cmd *cobra.Command) (string, error) {
	contentType, _ := cmd.Flags().GetString("type")
	if contentType == "" {
		return "", fmt.Errorf("--type is required")
	}
	return contentType, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
