package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/marcus/tipbox/internal/api"
	"github.com/marcus/tipbox/internal/catalog"
	"github.com/marcus/tipbox/internal/dateparse"
	"github.com/marcus/tipbox/internal/serverdb"
)

func runAdmin(args []string) {
	if err := admin(os.Stdout, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func admin(w io.Writer, args []string) error {
	if len(args) == 0 {
		printAdminUsage()
		return fmt.Errorf("missing admin command")
	}
	switch args[0] {
	case "seed":
		return adminSeed(w, args[1:])
	case "create-user":
		return adminCreateUser(w, args[1:])
	case "create-key":
		return adminCreateKey(w, args[1:])
	case "list-users":
		return adminListUsers(w, args[1:])
	default:
		printAdminUsage()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: tipbox-server admin <command> [flags]

Commands:
  seed [catalog.yaml]   Load the tip catalog (built-in catalog when omitted)
  create-user <email>   Register a user
  create-key <email>    Issue an API key for a user
  list-users            List registered users`)
}

func openDB(dbPath string) (*serverdb.ServerDB, error) {
	if dbPath == "" {
		dbPath = api.LoadConfig().ServerDBPath
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

func dbFlag(fs *flag.FlagSet) *string {
	return fs.String("db", "", "path to server.db (default: TIPBOX_SERVER_DB_PATH or ./data/server.db)")
}

func adminSeed(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("admin seed", flag.ContinueOnError)
	dbPath := dbFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	seed := catalog.Default()
	if path := fs.Arg(0); path != "" {
		var err error
		if seed, err = catalog.Load(path); err != nil {
			return err
		}
	}

	store, err := openDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := seed.Apply(store)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "seeded %d categories, %d tips\n", res.Categories, res.Tips)
	return nil
}

func adminCreateUser(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("admin create-user", flag.ContinueOnError)
	dbPath := dbFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	email := fs.Arg(0)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	store, err := openDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	existing, err := store.GetUserByEmail(email)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("user already exists: %s", existing.Email)
	}
	u, err := store.CreateUser(email)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "created user %s (%s)\n", u.Email, u.ID)
	return nil
}

func adminCreateKey(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("admin create-key", flag.ContinueOnError)
	name := fs.String("name", "admin", "key name")
	expires := fs.String("expires", "", "expiry: duration (720h), date (2027-01-01), +30d, next-month (default: never)")
	dbPath := dbFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	email := fs.Arg(0)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	store, err := openDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	u, err := store.GetUserByEmail(email)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("user not found: %s", email)
	}

	var expiresAt *time.Time
	if *expires != "" {
		t, err := dateparse.Parse(*expires)
		if err != nil {
			return fmt.Errorf("-expires: %w", err)
		}
		if !t.After(time.Now()) {
			return fmt.Errorf("-expires: %s is in the past", t.Format(time.RFC3339))
		}
		t = t.UTC()
		expiresAt = &t
	}
	plaintext, key, err := store.GenerateAPIKey(u.ID, *name, expiresAt)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "key %s for %s\n%s\n", key.ID, u.Email, plaintext)
	return nil
}

func adminListUsers(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("admin list-users", flag.ContinueOnError)
	dbPath := dbFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	users, err := store.ListUsers()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tVERIFIED\tCREATED")
	for _, u := range users {
		verified := "no"
		if u.EmailVerifiedAt != nil {
			verified = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Email, verified, u.CreatedAt.Format(time.DateOnly))
	}
	return tw.Flush()
}
