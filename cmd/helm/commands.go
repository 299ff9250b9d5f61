package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/helm/internal/api"
	"github.com/banshee-data/helm/internal/db"
	"github.com/banshee-data/helm/internal/security"
)

func printUsage() {
	fmt.Println(`helm - autopilot compass dial and J1939 bus browser

Usage: helm [flags] [command]

Commands:
  (none)     Run the server
  migrate    Manage database migrations (helm migrate help)
  export     List logging sessions or export one as CSV
  ctl        Drive a running server: nav, goal, port, starboard, reset, tabs, select
  version    Show the build version
  help       Show this help message

Flags:`)
	flag.PrintDefaults()
}

// runExport lists sessions, or writes one session's frames as CSV to -out
// (stdout by default).
func runExport(args []string, dbPath string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	session := fs.String("session", "", "Session id to export")
	out := fs.String("out", "", "Output CSV file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	database, err := db.NewDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if *session == "" {
		return listSessions(database, stdout)
	}
	if _, err := database.GetSession(*session); err != nil {
		return err
	}

	w := stdout
	if *out != "" {
		if err := security.ValidateExportPath(*out); err != nil {
			return err
		}
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *out, err)
		}
		defer f.Close()
		w = f
	}
	return database.ExportSessionCSV(w, *session)
}

func listSessions(database *db.DB, w io.Writer) error {
	sessions, err := database.Sessions()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tSTARTED\tFRAMES")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Label, s.StartedAt.Format(time.RFC3339), humanize.Comma(s.Frames))
	}
	return tw.Flush()
}

// runCtl sends one command to a running server and prints the JSON answer.
func runCtl(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ctl", flag.ContinueOnError)
	server := fs.String("server", "http://localhost:8080", "Server base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("usage: helm ctl [--server URL] nav [units] | goal | port | starboard | reset | tabs | select <index>")
	}

	c := api.NewClient(*server, nil)
	var (
		v   interface{}
		err error
	)
	switch cmd := fs.Arg(0); cmd {
	case "nav":
		v, err = c.Nav(fs.Arg(1))
	case "goal":
		v, err = c.Goal()
	case "port":
		v, err = c.Port()
	case "starboard":
		v, err = c.Starboard()
	case "reset":
		v, err = c.Reset()
	case "tabs":
		v, err = c.Tabs()
	case "select":
		i, convErr := strconv.Atoi(fs.Arg(1))
		if convErr != nil {
			return fmt.Errorf("select needs a tab index: %w", convErr)
		}
		v, err = c.SelectTab(i)
	default:
		return fmt.Errorf("unknown ctl command %q", cmd)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
