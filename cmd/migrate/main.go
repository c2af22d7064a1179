package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get database URL
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	// Get command
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go [drop|up|seed]")
		os.Exit(1)
	}

	command := os.Args[1]

	// Connect to database
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	switch command {
	case "drop":
		if err := dropTables(ctx, conn); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "up":
		if err := createTables(ctx, conn); err != nil {
			log.Fatalf("Failed to create tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "seed":
		if err := seedData(ctx, conn); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("✅ Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Usage: go run main.go [drop|up|seed]")
		os.Exit(1)
	}
}

func dropTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`DROP TABLE IF EXISTS outbox_entries CASCADE`,
		`DROP TABLE IF EXISTS votes CASCADE`,
		`DROP TABLE IF EXISTS nominations CASCADE`,
		`DROP TABLE IF EXISTS nominees CASCADE`,
		`DROP TABLE IF EXISTS nominators CASCADE`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Dropped: %s\n", query)
	}

	return nil
}

func createTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		// Nominators are deduplicated by email
		`CREATE TABLE IF NOT EXISTS nominators (
			id UUID PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			name VARCHAR(255) NOT NULL,
			company VARCHAR(255) NOT NULL DEFAULT '',
			job_title VARCHAR(255) NOT NULL DEFAULT '',
			phone VARCHAR(50) NOT NULL DEFAULT '',
			country VARCHAR(100) NOT NULL DEFAULT '',
			linkedin VARCHAR(500) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Nominees carry both person and company field groups; identity_key
		// is the dedup key (person email, company domain, or name fallback)
		`CREATE TABLE IF NOT EXISTS nominees (
			id UUID PRIMARY KEY,
			kind VARCHAR(20) NOT NULL,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL DEFAULT '',
			job_title VARCHAR(255) NOT NULL DEFAULT '',
			employer VARCHAR(255) NOT NULL DEFAULT '',
			headshot_url VARCHAR(500) NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			website VARCHAR(500) NOT NULL DEFAULT '',
			industry VARCHAR(255) NOT NULL DEFAULT '',
			company_size VARCHAR(50) NOT NULL DEFAULT '',
			logo_url VARCHAR(500) NOT NULL DEFAULT '',
			linkedin VARCHAR(500) NOT NULL DEFAULT '',
			why TEXT NOT NULL DEFAULT '',
			identity_key VARCHAR(500) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (kind, identity_key)
		)`,

		`CREATE TABLE IF NOT EXISTS nominations (
			id UUID PRIMARY KEY,
			nominator_id UUID NOT NULL REFERENCES nominators(id),
			nominee_id UUID NOT NULL REFERENCES nominees(id),
			category_id INTEGER NOT NULL,
			subcategory_id INTEGER NOT NULL,
			state VARCHAR(20) NOT NULL DEFAULT 'submitted'
				CHECK (state IN ('draft', 'submitted', 'approved', 'rejected')),
			votes INTEGER NOT NULL DEFAULT 0,
			additional_votes INTEGER NOT NULL DEFAULT 0,
			live_url VARCHAR(500) NOT NULL DEFAULT '',
			source VARCHAR(20) NOT NULL DEFAULT 'public',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			approved_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// At most one non-rejected nomination per nominee per subcategory
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_nominations_active
			ON nominations(nominee_id, subcategory_id)
			WHERE state <> 'rejected'`,

		`CREATE TABLE IF NOT EXISTS votes (
			id UUID PRIMARY KEY,
			nomination_id UUID NOT NULL REFERENCES nominations(id) ON DELETE CASCADE,
			subcategory_id INTEGER NOT NULL,
			voter_email VARCHAR(255) NOT NULL,
			voter_name VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT votes_subcategory_voter_key UNIQUE (subcategory_id, voter_email)
		)`,

		`CREATE TABLE IF NOT EXISTS outbox_entries (
			id UUID PRIMARY KEY,
			event_type VARCHAR(50) NOT NULL,
			target VARCHAR(50) NOT NULL,
			payload JSONB NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'processing', 'done', 'failed', 'dead')),
			attempt_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			claimed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Create indexes
		`CREATE INDEX IF NOT EXISTS idx_nominations_state ON nominations(state)`,
		`CREATE INDEX IF NOT EXISTS idx_nominations_subcategory ON nominations(subcategory_id)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_nomination_id ON votes(nomination_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_claimable
			ON outbox_entries(next_attempt_at) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_entries(status)`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  Created: %s\n", getTableName(query))
	}

	return nil
}

func seedData(ctx context.Context, conn *pgx.Conn) error {
	// Insert a sample nominator for local development
	nominatorQuery := `
		INSERT INTO nominators (id, email, name, company, job_title, country) VALUES
		('11111111-1111-1111-1111-111111111111', 'dev.nominator@example.com', 'Dev Nominator', 'Example Ltd', 'Engineer', 'United Kingdom')
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			company = EXCLUDED.company,
			updated_at = NOW()
	`

	if _, err := conn.Exec(ctx, nominatorQuery); err != nil {
		return fmt.Errorf("failed to seed nominators: %w", err)
	}

	fmt.Println("  Seeded 1 nominator")

	nomineeQuery := `
		INSERT INTO nominees (id, kind, name, email, job_title, employer, identity_key) VALUES
		('22222222-2222-2222-2222-222222222222', 'person', 'Sample Nominee', 'sample.nominee@example.com', 'Head of Marketing', 'Example Ltd', 'sample.nominee@example.com'),
		('33333333-3333-3333-3333-333333333333', 'company', 'Acme Corp', '', '', '', 'acme.example')
		ON CONFLICT (kind, identity_key) DO NOTHING
	`

	if _, err := conn.Exec(ctx, nomineeQuery); err != nil {
		return fmt.Errorf("failed to seed nominees: %w", err)
	}

	fmt.Println("  Seeded 2 nominees")

	nominationQuery := `
		INSERT INTO nominations (id, nominator_id, nominee_id, category_id, subcategory_id, state, source) VALUES
		('44444444-4444-4444-4444-444444444444', '11111111-1111-1111-1111-111111111111', '22222222-2222-2222-2222-222222222222', 1, 101, 'submitted', 'public')
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := conn.Exec(ctx, nominationQuery); err != nil {
		return fmt.Errorf("failed to seed nominations: %w", err)
	}

	fmt.Println("  Seeded 1 nomination")

	return nil
}

func getTableName(query string) string {
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}
