// Package main provides the cyphergres command line interface.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cyphergres "github.com/ritamzico/cyphergres"
	"github.com/ritamzico/cyphergres/internal/pgdriver"
)

const helpText = `cyphergres interactive REPL

Commands:
  group <id>   Set the tenant group id for translations
  params <js>  Set named parameters from a JSON object
  help         Show this help message
  exit / quit  Exit the REPL

Any other input is translated from Cypher to SQL and printed together
with its positional parameters.

Examples:
  MATCH (n:Person) WHERE n.age > 25 RETURN n.name
  MATCH (a:Person)-[:KNOWS*1..3]->(b) RETURN a.name, b.name
  MATCH (n:Person {name: $name}) SET n.age = $age
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "cyphergres",
		Short: "cyphergres - openCypher to SQL translation for property graphs",
		Long: `cyphergres translates a subset of the openCypher query language
into parameterised SQL against a two-table property-graph schema
(nodes and edges with JSON properties and multi-tenant group ids).`,
	}

	var groupID string
	var paramsJSON string

	translateCmd := &cobra.Command{
		Use:   "translate [query]",
		Short: "Translate one Cypher query to SQL (reads stdin when no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(args)
			if err != nil {
				return err
			}
			params, err := parseParams(paramsJSON)
			if err != nil {
				return err
			}
			sqlText, sqlParams, err := cyphergres.Translate(query, params, groupID)
			if err != nil {
				return err
			}
			printTranslation(cmd.OutOrStdout(), sqlText, sqlParams)
			return nil
		},
	}
	translateCmd.Flags().StringVar(&groupID, "group", "", "tenant group id bound as $1")
	translateCmd.Flags().StringVar(&paramsJSON, "params", "", "named parameters as a JSON object")
	rootCmd.AddCommand(translateCmd)

	execCmd := &cobra.Command{
		Use:   "exec [query]",
		Short: "Run a Cypher query against Postgres through the driver",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, _ := cmd.Flags().GetString("dsn")
			if dsn == "" {
				dsn = os.Getenv("CYPHERGRES_DATABASE_URL")
			}
			if dsn == "" {
				return fmt.Errorf("no database: pass --dsn or set CYPHERGRES_DATABASE_URL")
			}
			query, err := readQuery(args)
			if err != nil {
				return err
			}
			params, err := parseParams(paramsJSON)
			if err != nil {
				return err
			}
			driver, err := pgdriver.Open(dsn, groupID, logrus.New())
			if err != nil {
				return err
			}
			defer driver.Close()

			rows, err := driver.QueryCypher(context.Background(), query, params)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, row := range rows {
				if err := enc.Encode(row); err != nil {
					return err
				}
			}
			return nil
		},
	}
	execCmd.Flags().StringVar(&groupID, "group", "", "tenant group id bound as $1")
	execCmd.Flags().StringVar(&paramsJSON, "params", "", "named parameters as a JSON object")
	execCmd.Flags().String("dsn", "", "Postgres connection string")
	rootCmd.AddCommand(execCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "repl",
		Short: "Start an interactive translation REPL",
		RunE: func(cmd *cobra.Command, args []string) error {
			runREPL()
			return nil
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readQuery(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseParams(paramsJSON string) (map[string]any, error) {
	if paramsJSON == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		return nil, fmt.Errorf("invalid --params: %w", err)
	}
	return params, nil
}

func printTranslation(w io.Writer, sqlText string, params []any) {
	fmt.Fprintln(w, sqlText)
	for i, p := range params {
		fmt.Fprintf(w, "  $%d = %v\n", i+1, p)
	}
}

func runREPL() {
	groupID := ""
	var params map[string]any

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("cyphergres — openCypher to SQL translator")
	fmt.Println(`Type "help" for available commands.`)
	fmt.Println()

	for {
		if groupID != "" {
			fmt.Printf("[%s]> ", groupID)
		} else {
			fmt.Print("> ")
		}

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		switch strings.ToLower(parts[0]) {
		case "exit", "quit":
			return

		case "help":
			fmt.Print(helpText)

		case "group":
			if len(parts) != 2 {
				fmt.Println("usage: group <id>")
				continue
			}
			groupID = parts[1]

		case "params":
			rest := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))
			parsed, err := parseParams(rest)
			if err != nil {
				fmt.Println(err)
				continue
			}
			params = parsed

		default:
			sqlText, sqlParams, err := cyphergres.Translate(line, params, groupID)
			if err != nil {
				fmt.Println(err)
				continue
			}
			printTranslation(os.Stdout, sqlText, sqlParams)
		}
	}
}
