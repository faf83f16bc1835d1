package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trackerd/internal/dashboard"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the Grafana dashboards",
	Long:  "dashboard renders the report and metrics Grafana dashboards from their templates, pulling datasource UIDs from the environment.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dashboard.Render(dashboardOut); err != nil {
			return err
		}
		fmt.Printf("dashboards rendered to %s\n", dashboardOut)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory for rendered dashboards")
}
