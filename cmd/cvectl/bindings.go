package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/katello/lifecycle/pkg/lifecycle"
)

const bindingsPath = "/content_view_environments"

var (
	listSearch      string
	listDefault     string
	createCV        uint
	createEnv       uint
	createName      string
	createVersion   uint
	priorityFacet   uint
	setPriorityFlag int
)

var resolveCmd = &cobra.Command{
	Use:   "resolve NAME",
	Short: "Resolve a Candlepin environment name to its content view environment",
	Long: `Resolve looks up the content view environment whose Candlepin name is NAME.

NAME is either "<environment-label>/<content-view-label>" or a bare environment
label, which names the default content view in that environment.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(cmd.OutOrStdout(), newClient(), args[0])
	},
}

var getCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show a content view environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return runGet(cmd.OutOrStdout(), newClient(), id)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List content view environments in the organization",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runList(cmd.OutOrStdout(), newClient(), listSearch, listDefault)
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Bind a content view to a lifecycle environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		req := lifecycle.CreateBindingRequest{
			Name:          createName,
			ContentViewID: createCV,
			EnvironmentID: createEnv,
		}
		if createVersion != 0 {
			v := createVersion
			req.ContentViewVersionID = &v
		}
		return runCreate(cmd.OutOrStdout(), newClient(), req)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a content view environment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := newClient().delete(apiPath(bindingPath(id), nil)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "content view environment %d deleted\n", id)
		return nil
	},
}

var priorityCmd = &cobra.Command{
	Use:   "priority ID",
	Short: "Show the priority of a content view environment for a content facet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return runPriority(cmd.OutOrStdout(), newClient(), id, priorityFacet)
	},
}

var setPriorityCmd = &cobra.Command{
	Use:   "set-priority ID",
	Short: "Set the priority of a content view environment for a content facet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return runSetPriority(cmd.OutOrStdout(), newClient(), id, priorityFacet, setPriorityFlag)
	},
}

func init() {
	listCmd.Flags().StringVar(&listSearch, "search", "", `Scoped search, e.g. "content_view=web and lifecycle_environment=dev"`)
	listCmd.Flags().StringVar(&listDefault, "default", "", "Filter on default content view: true or false")

	createCmd.Flags().UintVar(&createCV, "content-view", 0, "Content view ID")
	createCmd.Flags().UintVar(&createEnv, "environment", 0, "Lifecycle environment ID")
	createCmd.Flags().StringVar(&createName, "name", "", "Display name (default: the environment name)")
	createCmd.Flags().UintVar(&createVersion, "content-view-version", 0, "Content view version ID")
	_ = createCmd.MarkFlagRequired("content-view")
	_ = createCmd.MarkFlagRequired("environment")

	for _, c := range []*cobra.Command{priorityCmd, setPriorityCmd} {
		c.Flags().UintVar(&priorityFacet, "content-facet", 0, "Content facet ID")
		_ = c.MarkFlagRequired("content-facet")
	}
	setPriorityCmd.Flags().IntVar(&setPriorityFlag, "priority", 0, "Priority (0 is highest)")
	_ = setPriorityCmd.MarkFlagRequired("priority")
}

func runResolve(w io.Writer, c *lifecycleClient, name string) error {
	var b lifecycle.BindingResponse
	if err := c.getJSON(apiPath(bindingsPath+"/resolve", url.Values{"name": {name}}), &b); err != nil {
		return err
	}
	return render(w, b, func(w io.Writer) { printBindings(w, []lifecycle.BindingResponse{b}) })
}

func runGet(w io.Writer, c *lifecycleClient, id uint) error {
	var b lifecycle.BindingResponse
	if err := c.getJSON(apiPath(bindingPath(id), nil), &b); err != nil {
		return err
	}
	return render(w, b, func(w io.Writer) { printBindings(w, []lifecycle.BindingResponse{b}) })
}

func runList(w io.Writer, c *lifecycleClient, search, def string) error {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if def != "" {
		if _, err := strconv.ParseBool(def); err != nil {
			return fmt.Errorf("invalid --default %q: use true or false", def)
		}
		q.Set("default", def)
	}
	var list lifecycle.BindingList
	if err := c.getJSON(apiPath(bindingsPath, q), &list); err != nil {
		return err
	}
	return render(w, list, func(w io.Writer) {
		printBindings(w, list.Results)
		fmt.Fprintf(w, "\n%d content view environment(s)\n", list.Total)
	})
}

func runCreate(w io.Writer, c *lifecycleClient, req lifecycle.CreateBindingRequest) error {
	var b lifecycle.BindingResponse
	if err := c.postJSON(apiPath(bindingsPath, nil), req, &b); err != nil {
		return err
	}
	return render(w, b, func(w io.Writer) { printBindings(w, []lifecycle.BindingResponse{b}) })
}

func runPriority(w io.Writer, c *lifecycleClient, id, facet uint) error {
	q := url.Values{"content_facet_id": {strconv.FormatUint(uint64(facet), 10)}}
	var p lifecycle.PriorityResponse
	if err := c.getJSON(apiPath(bindingPath(id)+"/priority", q), &p); err != nil {
		return err
	}
	return render(w, p, func(w io.Writer) { printPriority(w, p) })
}

func runSetPriority(w io.Writer, c *lifecycleClient, id, facet uint, priority int) error {
	path := fmt.Sprintf("%s/content_facets/%d", bindingPath(id), facet)
	var p lifecycle.PriorityResponse
	if err := c.putJSON(apiPath(path, nil), lifecycle.SetPriorityRequest{Priority: priority}, &p); err != nil {
		return err
	}
	return render(w, p, func(w io.Writer) { printPriority(w, p) })
}

func printBindings(w io.Writer, bindings []lifecycle.BindingResponse) {
	headers := []string{"id", "name", "candlepin name", "content view", "environment", "default"}
	rows := make([][]string, len(bindings))
	for i, b := range bindings {
		var cv, env string
		if b.ContentView != nil {
			cv = b.ContentView.Label
		}
		if b.Environment != nil {
			env = b.Environment.Label
		}
		rows[i] = []string{
			strconv.FormatUint(uint64(b.ID), 10),
			truncate(b.Name, 40),
			b.CandlepinName,
			cv,
			env,
			strconv.FormatBool(b.Default),
		}
	}
	printTable(w, headers, rows)
}

func printPriority(w io.Writer, p lifecycle.PriorityResponse) {
	priority := "-"
	if p.Priority != nil {
		priority = strconv.Itoa(*p.Priority)
	}
	printTable(w, []string{"content view environment", "content facet", "priority"}, [][]string{{
		strconv.FormatUint(uint64(p.ContentViewEnvironmentID), 10),
		strconv.FormatUint(uint64(p.ContentFacetID), 10),
		priority,
	}})
}

func bindingPath(id uint) string {
	return fmt.Sprintf("%s/%d", bindingsPath, id)
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(id), nil
}
