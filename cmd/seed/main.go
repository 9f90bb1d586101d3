// seed llena una base postgres con datos de desarrollo: un admin, un
// usuario dueño, dos nodes con allocations y un server asignado. Pensado
// para entornos locales; se niega a correr si ya hay usuarios.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("STORAGE_DSN"), "DSN de postgres (env STORAGE_DSN)")
	adminEmail := flag.String("admin-email", "admin@localhost", "email del admin inicial")
	adminPass := flag.String("admin-password", "", "password del admin (vacío genera una)")
	flag.Parse()

	_ = godotenv.Load()
	if *dsn == "" {
		*dsn = os.Getenv("STORAGE_DSN")
	}
	if *dsn == "" {
		fmt.Fprintln(os.Stderr, "falta -dsn o STORAGE_DSN")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		fatal("conectar a postgres", err)
	}
	defer pool.Close()

	var existing int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&existing); err != nil {
		fatal("leer users (¿corriste las migraciones?)", err)
	}
	if existing > 0 {
		fmt.Fprintf(os.Stderr, "la base ya tiene %d usuarios, no se siembra nada\n", existing)
		os.Exit(1)
	}

	pass := *adminPass
	if pass == "" {
		pass = randomHex(12)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pass), 12)
	if err != nil {
		fatal("hashear password", err)
	}

	adminID := uuid.NewString()
	ownerID := uuid.NewString()
	nodeA, nodeB := uuid.NewString(), uuid.NewString()
	srvUUID := uuid.NewString()
	// identifier corto estilo panel: primer segmento del uuid
	srvIdent := srvUUID[:8]

	tx, err := pool.Begin(ctx)
	if err != nil {
		fatal("abrir transacción", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	exec := func(sql string, args ...any) {
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			fatal("insert", err)
		}
	}

	exec(`INSERT INTO users (id, username, email, role, email_verified_at, password_hash) VALUES ($1,$2,$3,'admin',$4,$5)`,
		adminID, "admin", *adminEmail, now, string(hash))
	exec(`INSERT INTO users (id, username, email, role, email_verified_at, password_hash) VALUES ($1,$2,$3,'user',$4,'')`,
		ownerID, "owner", "owner@localhost", now)

	exec(`INSERT INTO nodes (id, name, fqdn, scheme, daemon_listen, token_id, token_secret) VALUES ($1,'local-a','127.0.0.1','http',8080,$2,$3)`,
		nodeA, randomHex(8), randomHex(24))
	exec(`INSERT INTO nodes (id, name, fqdn, scheme, daemon_listen, token_id, token_secret) VALUES ($1,'local-b','127.0.0.1','http',8081,$2,$3)`,
		nodeB, randomHex(8), randomHex(24))

	exec(`INSERT INTO servers (uuid, identifier, name, owner_id, node_id, allocation_id) VALUES ($1,$2,'sandbox',$3,$4,1)`,
		srvUUID, srvIdent, ownerID, nodeA)

	exec(`INSERT INTO allocations (id, node_id, ip, port, server_uuid) VALUES (1,$1,'127.0.0.1',25565,$2)`, nodeA, srvUUID)
	exec(`INSERT INTO allocations (id, node_id, ip, port) VALUES (2,$1,'127.0.0.1',25565)`, nodeB)
	exec(`INSERT INTO allocations (id, node_id, ip, port) VALUES (3,$1,'127.0.0.1',25566)`, nodeB)

	if err := tx.Commit(ctx); err != nil {
		fatal("commit", err)
	}

	fmt.Println("seed listo:")
	fmt.Printf("  admin:  %s / %s\n", *adminEmail, pass)
	fmt.Printf("  server: %s (identifier %s) en node local-a\n", srvUUID, srvIdent)
	fmt.Println("  node local-b libre para probar transfers (allocations 2 y 3)")
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		fatal("generar random", err)
	}
	return hex.EncodeToString(b)
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", what, err)
	os.Exit(1)
}
