// Command vexguard-admin bootstraps a tenant during initial deployment:
// it creates a team and prints a signed dashboard token for it.
//
// Usage:
//
//	# Create a team and print an owner token
//	./vexguard-admin -db=$DATABASE_URL -name="Acme Inc" -slug=acme
//
//	# Or via environment variables
//	DATABASE_URL=postgres://... JWT_SECRET=... ./vexguard-admin -name="Acme Inc" -slug=acme
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vexguard/api/internal/infra/postgres"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/team"
	"github.com/vexguard/api/pkg/jwt"
)

func main() {
	dbURL := flag.String("db", "", "Database DSN (or set DATABASE_URL env)")
	name := flag.String("name", "", "Team display name")
	slug := flag.String("slug", "", "Team slug (defaults to a lowercased name)")
	email := flag.String("email", "", "Email embedded in the owner token")
	secret := flag.String("jwt-secret", "", "Token signing secret (or set JWT_SECRET env)")
	issuer := flag.String("jwt-issuer", "vexguard", "Token issuer claim")
	ttl := flag.Duration("token-ttl", 24*time.Hour, "Owner token lifetime")
	flag.Parse()

	databaseURL := *dbURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		fatal("Database DSN required. Use -db flag or set DATABASE_URL")
	}

	teamName := *name
	if teamName == "" {
		fatal("Team name required. Use -name flag")
	}

	teamSlug := *slug
	if teamSlug == "" {
		teamSlug = strings.ToLower(strings.ReplaceAll(teamName, " ", "-"))
	}

	jwtSecret := *secret
	if jwtSecret == "" {
		jwtSecret = os.Getenv("JWT_SECRET")
	}
	if jwtSecret == "" {
		fatal("JWT secret required. Use -jwt-secret flag or set JWT_SECRET")
	}

	ownerEmail := *email
	if ownerEmail == "" {
		ownerEmail = "owner@" + teamSlug + ".invalid"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.New(databaseURL, postgres.DefaultOptions())
	if err != nil {
		fatal("Error connecting to database: %v", err)
	}
	defer db.Close()

	teams := postgres.NewTeamRepository(db)

	if existing, err := teams.GetBySlug(ctx, teamSlug); err == nil {
		fatal("Team with slug %s already exists (ID: %s)", teamSlug, existing.ID().String())
	} else if !errors.Is(err, team.ErrTeamNotFound) {
		fatal("Error checking existing team: %v", err)
	}

	t, err := team.NewTeam(shared.NewID(), teamName, teamSlug)
	if err != nil {
		fatal("Invalid team: %v", err)
	}
	if err := teams.Create(ctx, t); err != nil {
		fatal("Error creating team: %v", err)
	}

	gen := jwt.NewGenerator(jwt.Config{
		Secret:   jwtSecret,
		Issuer:   *issuer,
		Duration: *ttl,
	})
	token, expiresAt, err := gen.Generate(shared.NewID().String(), ownerEmail, "Bootstrap Owner",
		[]jwt.TeamMembership{{TeamID: t.ID().String(), Role: "owner"}})
	if err != nil {
		fatal("Error signing token: %v", err)
	}

	fmt.Println()
	fmt.Println("=== Team Created ===")
	fmt.Printf("  ID:   %s\n", t.ID().String())
	fmt.Printf("  Name: %s\n", t.Name())
	fmt.Printf("  Slug: %s\n", t.Slug())
	fmt.Println()
	fmt.Printf("Owner token (valid until %s):\n", expiresAt.Format(time.RFC3339))
	fmt.Printf("  %s\n", token)
	fmt.Println()
	fmt.Println("Test the connection:")
	fmt.Printf("  curl -H \"Authorization: Bearer $TOKEN\" -H \"X-Team-ID: %s\" https://your-api-url/api/v1/repos\n", t.ID().String())
}

func fatal(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	fmt.Fprint(os.Stderr, "Error: "+msg)
	os.Exit(1)
}
