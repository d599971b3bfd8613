// adminctl creates staff accounts and manages user roles from the shell.
// Staff accounts never come from the public register endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/prepverse/prepverse-lms/internal/config"
	"github.com/prepverse/prepverse-lms/internal/db"
)

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		usage()
	}
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	switch os.Args[1] {
	case "create-staff":
		fs := flag.NewFlagSet("create-staff", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "initial password")
		role := fs.String("role", "", "optional role (student|teacher); empty for a bare staff account")
		_ = fs.Parse(os.Args[2:])

		*email = strings.ToLower(strings.TrimSpace(*email))
		if *email == "" || *password == "" {
			log.Fatal("create-staff: -email and -password are required")
		}
		switch *role {
		case "", "student", "teacher":
		default:
			log.Fatalf("create-staff: invalid role %q", *role)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(*password), 12)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		var roleArg any
		if *role != "" {
			roleArg = *role
		}
		var id int64
		err = dbh.QueryRowContext(ctx, `
			INSERT INTO users (email, password_hash, role, is_staff, created_at)
			VALUES ($1,$2,$3,TRUE,$4) RETURNING id`,
			*email, string(hash), roleArg, time.Now().Unix()).Scan(&id)
		if db.IsUniqueViolation(err) {
			log.Fatalf("create-staff: %s is already registered", *email)
		}
		if err != nil {
			log.Fatalf("create-staff: %v", err)
		}
		fmt.Printf("staff user %d (%s) created\n", id, *email)

	case "set-staff":
		fs := flag.NewFlagSet("set-staff", flag.ExitOnError)
		email := fs.String("email", "", "account email")
		staff := fs.Bool("staff", true, "grant or revoke the staff flag")
		_ = fs.Parse(os.Args[2:])

		*email = strings.ToLower(strings.TrimSpace(*email))
		if *email == "" {
			log.Fatal("set-staff: -email is required")
		}
		res, err := dbh.ExecContext(ctx, `UPDATE users SET is_staff=$1 WHERE email=$2`, *staff, *email)
		if err != nil {
			log.Fatalf("set-staff: %v", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			log.Fatalf("set-staff: no user with email %s", *email)
		}
		fmt.Printf("staff=%v for %s\n", *staff, *email)

	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: adminctl <command> [flags]

commands:
  create-staff  -email -password [-role]   create a staff account
  set-staff     -email [-staff=false]      grant or revoke the staff flag`)
	os.Exit(2)
}
