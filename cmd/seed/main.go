// seed inserts development accounts into the users table and can print a
// token pair for one of them, for local testing with grpcurl.
// Idempotent: existing accounts keep their status.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"lms-session-manager/backend/internal/blacklist"
	blacklistrepo "lms-session-manager/backend/internal/blacklist/repository"
	"lms-session-manager/backend/internal/config"
	"lms-session-manager/backend/internal/db"
	"lms-session-manager/backend/internal/security"
	"lms-session-manager/backend/internal/session"
	sessionrepo "lms-session-manager/backend/internal/session/repository"
	"lms-session-manager/backend/internal/token"
	"lms-session-manager/backend/internal/user"
	userdomain "lms-session-manager/backend/internal/user/domain"
)

const insertUserSQL = `insert into users (id, status) values ($1, $2) on conflict (id) do nothing`

var devUsers = []struct {
	id     string
	status userdomain.Status
}{
	{"dev-learner-001", userdomain.StatusActive},
	{"dev-instructor-001", userdomain.StatusActive},
	{"dev-admin-001", userdomain.StatusActive},
	{"dev-suspended-001", userdomain.StatusSuspended},
}

func main() {
	issueFor := flag.String("issue", "", "Issue and print a token pair for this user id after seeding")
	role := flag.String("role", string(security.RoleLearner), "Role for -issue: learner, instructor or administrator")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	for _, u := range devUsers {
		if _, err := conn.ExecContext(ctx, insertUserSQL, u.id, string(u.status)); err != nil {
			log.Fatalf("seed user %s: %v", u.id, err)
		}
	}
	log.Printf("seeded %d dev users", len(devUsers))

	if *issueFor == "" {
		return
	}
	keys, err := security.DeriveSigningKeys(cfg.JWTSecret, cfg.JWTRefreshSecret)
	if err != nil {
		log.Fatalf("signing keys: %v", err)
	}
	codec, err := security.NewCodec(keys, cfg.JWTIssuer, cfg.JWTAudience)
	if err != nil {
		log.Fatalf("codec: %v", err)
	}
	svc, err := token.New(token.Deps{
		Codec:     codec,
		Blacklist: blacklist.NewStore(blacklistrepo.NewPostgresRepository(conn)),
		Sessions:  session.NewRegistry(sessionrepo.NewPostgresRepository(conn), session.WithSessionTTL(cfg.RefreshTTL())),
		Directory: user.NewPostgresDirectory(conn),
	}, token.WithAccessTTL(cfg.AccessTTL()), token.WithRefreshTTL(cfg.RefreshTTL()))
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	pair, err := svc.IssueAccessAndRefresh(ctx, token.Identity{
		UserID:      *issueFor,
		Role:        security.Role(*role),
		Permissions: []string{"course.read"},
	})
	if err != nil {
		log.Fatalf("issue: %v", err)
	}
	fmt.Printf("session_id=%s\naccess_token=%s\nrefresh_token=%s\n", pair.SessionID, pair.AccessToken, pair.RefreshToken)
}
