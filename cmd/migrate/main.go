package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"hookrelay.io/internal/migrate"
	"hookrelay.io/internal/obs"
)

func main() {
	var (
		dsn  = flag.String("dsn", os.Getenv("HOOKRELAY_PG_DSN"), "PostgreSQL DSN")
		dir  = flag.String("migrations", "", "Directory of SQL migrations (defaults to the embedded set)")
		tbl  = flag.String("table", "", "Migrations bookkeeping table")
		wait = flag.Duration("timeout", 30*time.Second, "Overall timeout")
	)
	flag.Parse()
	log := obs.Logger()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or HOOKRELAY_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *wait)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer db.Close()

	var files fs.FS
	if *dir != "" {
		files = os.DirFS(*dir)
	}
	mgr := migrate.NewManager(db, files, migrate.WithMigrationsTable(*tbl))

	switch flag.Arg(0) {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		if err == nil && len(applied) == 0 {
			fmt.Println("nothing to apply")
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil {
			fmt.Println(name)
		}
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.WithError(err).Fatalf("migrate %s", flag.Arg(0))
	}
}
