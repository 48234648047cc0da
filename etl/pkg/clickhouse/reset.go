package clickhouse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type ResetOptions struct {
	// DryRun lists the tables without dropping them.
	DryRun bool
	// SkipConfirm drops without asking for a typed "yes".
	SkipConfirm bool
	// In is read for the confirmation; Out receives the listing and progress.
	In  io.Reader
	Out io.Writer
}

// ResetTables drops every star-schema table (fact_*, dim_* and their stg_* staging
// copies) from database. Run bookkeeping tables are kept. It returns the number of
// tables dropped.
func ResetTables(ctx context.Context, log *slog.Logger, conn Connection, database string, opts ResetOptions) (int, error) {
	rows, err := conn.Query(ctx, `
		SELECT name
		FROM system.tables
		WHERE database = ?
		  AND engine NOT IN ('View', 'MaterializedView')
		  AND (startsWith(name, 'dim_') OR startsWith(name, 'fact_') OR startsWith(name, 'stg_'))
		ORDER BY name
	`, database)
	if err != nil {
		return 0, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return 0, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read tables: %w", err)
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	if len(tables) == 0 {
		fmt.Fprintln(out, "No fact, dimension or staging tables found")
		return 0, nil
	}

	fmt.Fprintf(out, "WARNING: This will DROP %d table(s) from database '%s':\n\n", len(tables), database)
	for _, t := range tables {
		fmt.Fprintf(out, "  - %s\n", t)
	}

	if opts.DryRun {
		fmt.Fprintln(out, "\n[DRY RUN] Would drop the above tables")
		return 0, nil
	}

	if !opts.SkipConfirm {
		if opts.In == nil {
			return 0, errors.New("confirmation required but no input available")
		}
		fmt.Fprintf(out, "\nThis is a DESTRUCTIVE operation that cannot be undone!\n")
		fmt.Fprintf(out, "Type 'yes' to confirm: ")

		response, err := bufio.NewReader(opts.In).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("failed to read confirmation: %w", err)
		}
		if strings.ToLower(strings.TrimSpace(response)) != "yes" {
			fmt.Fprintln(out, "\nConfirmation failed. Operation cancelled.")
			return 0, nil
		}
		fmt.Fprintln(out)
	}

	dropped := 0
	for _, t := range tables {
		if err := conn.Exec(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(t)); err != nil {
			return dropped, fmt.Errorf("failed to drop table %s: %w", t, err)
		}
		dropped++
		log.Debug("dropped table", "table", t)
		fmt.Fprintf(out, "  dropped %s\n", t)
	}

	fmt.Fprintf(out, "\nSuccessfully dropped %d table(s)\n", dropped)
	return dropped, nil
}
