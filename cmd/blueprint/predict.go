package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HendryAvila/blueprint/internal/server"
	"github.com/HendryAvila/blueprint/internal/session"
	"github.com/HendryAvila/blueprint/internal/templates"
	"github.com/HendryAvila/blueprint/internal/tenant"
)

func newPredictCmd(c *cli) *cobra.Command {
	var (
		company, project, format string
		extra                    []string
	)
	cmd := &cobra.Command{
		Use:   `predict "<requirement>"`,
		Short: "Predict a structure for one requirement and print it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			requirement := strings.Join(args, " ")
			return c.withApp(cmd.Context(), func(app *server.App) error {
				out, err := app.Manager.Predict(cmd.Context(), session.PredictInput{
					UserInput: requirement,
					Context:   extra,
					Auth:      tenant.AuthContext{Company: company, Project: project, AuthMethod: "cli"},
				})
				if err != nil {
					return err
				}
				if format == "json" {
					return writeJSON(cmd, out.Result)
				}
				doc, err := app.Renderer.Render(templates.Result, templates.ResultData{Title: requirement, Result: out.Result})
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), doc)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "tenant company")
	cmd.Flags().StringVar(&project, "project", "", "tenant project")
	cmd.Flags().StringArrayVar(&extra, "context", nil, "extra context item, repeatable (key=value becomes a named signal)")
	cmd.Flags().StringVar(&format, "format", "markdown", "output format: markdown or json")
	return cmd
}

func newPatternsCmd(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "List the pattern catalogue with current confidence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(app *server.App) error {
				list := app.Manager.Patterns()
				if format == "json" {
					return writeJSON(cmd, list)
				}
				data := templates.PatternsData{}
				for _, p := range list {
					data.Patterns = append(data.Patterns, templates.PatternRow(p))
				}
				doc, err := app.Renderer.Render(templates.Patterns, data)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), doc)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "markdown", "output format: markdown or json")
	return cmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
