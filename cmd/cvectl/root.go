package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	outputFmt    string
	organization string
	remoteUser   string
	token        string
)

var rootCmd = &cobra.Command{
	Use:   "cvectl",
	Short: "CLI for Katello content view environments",
	Long: `cvectl manages content view environment bindings on a Katello lifecycle server.

Binding commands operate inside one organization, taken from --organization
or the KATELLO_ORGANIZATION environment variable.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Lifecycle server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVarP(&organization, "organization", "O", "", "Organization label (default: from KATELLO_ORGANIZATION env)")
	rootCmd.PersistentFlags().StringVar(&remoteUser, "user", "", "User sent as X-Remote-User (default: from KATELLO_USER env)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token (default: from KATELLO_TOKEN env)")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(priorityCmd)
	rootCmd.AddCommand(setPriorityCmd)
	rootCmd.AddCommand(orgCmd)
	rootCmd.AddCommand(healthCmd)
}

// flagOrEnv returns the flag value, falling back to the named environment
// variable.
func flagOrEnv(value, env string) string {
	if value != "" {
		return value
	}
	return os.Getenv(env)
}

func resolvedOrganization() string { return flagOrEnv(organization, "KATELLO_ORGANIZATION") }
func resolvedUser() string         { return flagOrEnv(remoteUser, "KATELLO_USER") }
func resolvedToken() string        { return flagOrEnv(token, "KATELLO_TOKEN") }
