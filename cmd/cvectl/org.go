package main

import (
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/katello/lifecycle/pkg/lifecycle"
)

var orgName string

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organizations",
}

var orgCreateCmd = &cobra.Command{
	Use:   "create LABEL",
	Short: "Create an organization with its Library environment and default content view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOrgCreate(cmd.OutOrStdout(), newClient(), args[0], orgName)
	},
}

var orgGetCmd = &cobra.Command{
	Use:   "get LABEL",
	Short: "Show an organization",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var org lifecycle.OrganizationResponse
		if err := newClient().getJSON(apiPath("/organizations/"+args[0], nil), &org); err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), org, func(w io.Writer) { printOrganization(w, org) })
	},
}

func init() {
	orgCreateCmd.Flags().StringVar(&orgName, "name", "", "Display name (default: the label)")
	orgCmd.AddCommand(orgCreateCmd)
	orgCmd.AddCommand(orgGetCmd)
}

func runOrgCreate(w io.Writer, c *lifecycleClient, label, name string) error {
	var org lifecycle.OrganizationResponse
	req := lifecycle.CreateOrganizationRequest{Name: name, Label: label}
	if err := c.postJSON(apiPath("/organizations", nil), req, &org); err != nil {
		return err
	}
	return render(w, org, func(w io.Writer) { printOrganization(w, org) })
}

func printOrganization(w io.Writer, org lifecycle.OrganizationResponse) {
	printTable(w, []string{"id", "name", "label", "created"}, [][]string{{
		strconv.FormatUint(uint64(org.ID), 10), org.Name, org.Label, org.CreatedAt,
	}})
}
