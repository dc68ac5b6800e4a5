package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/attestor/core"
	"github.com/urfave/cli/v2"
)

var (
	errScopeRequired = errors.New("scope is required (--scope or ATTESTOR_SCOPE)")
	errUsage         = errors.New("wrong number of arguments")
)

func scopeFlag(c *cli.Context) (core.Scope, error) {
	scope := strings.TrimSpace(c.String("scope"))
	if scope == "" {
		return "", errScopeRequired
	}
	return core.Scope(scope), nil
}

// readUnits returns the trimmed non-empty lines of path.
func readUnits(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var units []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			units = append(units, line)
		}
	}
	return units, scanner.Err()
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("%w: ingest takes exactly one FILE", errUsage)
	}
	scope, err := scopeFlag(c)
	if err != nil {
		return err
	}
	path := c.Args().First()
	documentID := c.String("document")
	if documentID == "" {
		documentID = filepath.Base(path)
	}

	units, err := readUnits(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	diff, err := engine.Reconcile(c.Context, scope, documentID, units)
	if err != nil {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "%s: %d added, %d changed, %d removed, %d unchanged\n",
		documentID, len(diff.Added), len(diff.Changed), len(diff.Removed), diff.Unchanged)

	if c.Bool("wait") {
		if err := engine.DrainEmbeddings(c.Context); err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("%w: query needs a QUESTION", errUsage)
	}
	scope, err := scopeFlag(c)
	if err != nil {
		return err
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	run, err := engine.Query(ctx, scope, question)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	printRun(c.App.Writer, run)
	return nil
}

func queueCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := engine.QueueStats(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Pending: %d\n", stats.Depth)
	if stats.Depth > 0 {
		fmt.Fprintf(c.App.Writer, "Retrying: %d\n", stats.Retrying)
		fmt.Fprintf(c.App.Writer, "Oldest pending: %v\n", stats.OldestPendingAge.Round(time.Millisecond))
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	scope, err := scopeFlag(c)
	if err != nil {
		return err
	}
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", engine.Settings().AI.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	if _, err := engine.Reembed(c.Context, scope, c.App.ErrWriter); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

func runsCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("%w: runs takes exactly one RUN_ID", errUsage)
	}
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", c.Args().First(), err)
	}
	scope, err := scopeFlag(c)
	if err != nil {
		return err
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	run, err := engine.GetRun(c.Context, scope, core.ID(id))
	if err != nil {
		return fmt.Errorf("failed to load run %d: %w", id, err)
	}
	printRun(c.App.Writer, run)
	return nil
}

func configCommand(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	data, err := settings.YAML()
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func printRun(w io.Writer, run *core.QueryRun) {
	fmt.Fprintf(w, "Run %s (%s path, %s, %d iterations)\n", run.ID, run.Route, run.Status, run.IterationsUsed)
	for i, clause := range run.Clauses {
		if clause.Status != core.ClauseAccepted {
			continue
		}
		fmt.Fprintf(w, "%d. %s [confidence %.2f]\n", i+1, clause.Text, clause.Confidence)
		for _, cite := range clause.Citations {
			ref := "deleted"
			if cite.EvidenceRef != nil {
				ref = cite.EvidenceRef.String()
			}
			fmt.Fprintf(w, "   - %s#%d (%s) %.2f: %q\n", cite.DocumentID, cite.Position, ref, cite.CompositeScore, cite.TextSnapshot)
		}
	}
	for _, gap := range run.Gaps {
		fmt.Fprintf(w, "Gap: %s (%s)\n", gap.Text, gap.Reason)
	}
}
