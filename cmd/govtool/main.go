package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rowanvale/substratum/modules/governance/domain/ports"
	"github.com/rowanvale/substratum/modules/governance/domain/types"
	"github.com/rowanvale/substratum/modules/governance/infrastructure/persistence"
	"github.com/rowanvale/substratum/modules/governance/services"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: govtool <policy|proposals|rls-smoke> [args]")
	}

	switch os.Args[1] {
	case "policy":
		showPolicy(os.Args[2:])
	case "proposals":
		listProposals(os.Args[2:])
	case "rls-smoke":
		rlsSmoke(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

// showPolicy prints the effective governance policy for a workspace: the
// stored row when --url is given and the row exists, the environment
// fallback chain otherwise. Either way the printed policy is normalized,
// so it is exactly what the decision gateway would use.
func showPolicy(args []string) {
	fs := flag.NewFlagSet("policy", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url, workspace string
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.StringVar(&workspace, "workspace", "", "workspace id")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if workspace == "" {
		fatalf("missing --workspace")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	policy := services.PolicyFromEnv()
	if url != "" {
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			fatal(err)
		}
		defer pool.Close()
		stored, err := persistence.NewPolicyPGStore(pool).Load(ctx, workspace)
		if err == nil {
			stored.Source = types.PolicySourceWorkspaceDatabase
			policy = stored.Normalize()
		} else if !errors.Is(err, ports.ErrPolicyNotFound) {
			fatal(err)
		}
	}

	fmt.Printf("workspace:             %s\n", workspace)
	fmt.Printf("source:                %s\n", policy.Source)
	fmt.Printf("status:                %s\n", services.GovernanceStatus(policy))
	fmt.Printf("governance_enabled:    %t\n", policy.GovernanceEnabled)
	fmt.Printf("validator_required:    %t\n", policy.ValidatorRequired)
	fmt.Printf("direct_writes_allowed: %t\n", policy.DirectWritesAllowed)
	fmt.Printf("default_blast_radius:  %s\n", policy.DefaultBlastRadius)
	fmt.Printf("hybrid_risk_threshold: %.2f\n", policy.HybridRiskThreshold)
	for ep, pol := range policy.EntryPoints {
		fmt.Printf("entry_point %-20s %s\n", ep, pol)
	}
}

func listProposals(args []string) {
	fs := flag.NewFlagSet("proposals", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url, workspace, basket string
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.StringVar(&workspace, "workspace", "", "workspace id")
	fs.StringVar(&basket, "basket", "", "basket id filter")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}
	if workspace == "" {
		fatalf("missing --workspace")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer pool.Close()

	proposals, err := persistence.NewProposalPGStore(pool).ListOpen(ctx, workspace, basket)
	if err != nil {
		fatal(err)
	}
	if len(proposals) == 0 {
		fmt.Println("no open proposals")
		return
	}
	for _, p := range proposals {
		fmt.Printf("%s  %-12s  %-18s  basket=%s  ops=%d  created=%s\n",
			p.ID, p.Status, p.EntryPoint, p.BasketID, len(p.Ops), p.CreatedAt.Format(time.RFC3339))
	}
}

// rlsSmoke proves that governance tables fail closed without the workspace
// GUC and isolate rows between workspaces once it is set.
func rlsSmoke(args []string) {
	fs := flag.NewFlagSet("rls-smoke", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	fs.StringVar(&url, "url", "", "postgres connection string")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	tx, err := conn.Begin(ctx)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `CREATE TEMP TABLE rls_smoke (workspace_id text NOT NULL, val text NOT NULL);`); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE rls_smoke ENABLE ROW LEVEL SECURITY;`); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE rls_smoke FORCE ROW LEVEL SECURITY;`); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `
CREATE POLICY workspace_isolation ON rls_smoke
USING (workspace_id = current_setting('app.current_workspace'))
WITH CHECK (workspace_id = current_setting('app.current_workspace'));`); err != nil {
		fatal(err)
	}

	if _, err := tx.Exec(ctx, `SAVEPOINT sp_failclosed;`); err != nil {
		fatal(err)
	}
	_, err = tx.Exec(ctx, `SELECT count(*) FROM rls_smoke;`)
	if _, rbErr := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT sp_failclosed;`); rbErr != nil {
		fatal(rbErr)
	}
	if err == nil {
		fatalf("expected fail-closed error when app.current_workspace is missing")
	}

	workspaceA := "ws-aaaa"
	workspaceB := "ws-bbbb"
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_workspace', $1, true);`, workspaceA); err != nil {
		fatal(err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO rls_smoke (workspace_id, val) VALUES ($1, 'a');`, workspaceA); err != nil {
		fatal(err)
	}

	if _, err := tx.Exec(ctx, `SAVEPOINT sp_cross_insert;`); err != nil {
		fatal(err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO rls_smoke (workspace_id, val) VALUES ($1, 'b');`, workspaceB)
	if _, rbErr := tx.Exec(ctx, `ROLLBACK TO SAVEPOINT sp_cross_insert;`); rbErr != nil {
		fatal(rbErr)
	}
	if err == nil {
		fatalf("expected RLS rejection on cross-workspace insert")
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM rls_smoke;`).Scan(&count); err != nil {
		fatal(err)
	}
	if count != 1 {
		fatalf("expected count=1 under workspace A, got %d", count)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_workspace', $1, true);`, workspaceB); err != nil {
		fatal(err)
	}
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM rls_smoke;`).Scan(&count); err != nil {
		fatal(err)
	}
	if count != 0 {
		fatalf("expected count=0 under workspace B, got %d", count)
	}

	if err := tx.Commit(ctx); err != nil {
		fatal(err)
	}

	fmt.Println("[rls-smoke] OK")
}

func fatal(err error) {
	if err == nil {
		os.Exit(1)
	}
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
