// Command token issues a teacher identity token signed with the server's
// JWT secret, for local testing against a server started with -s.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/classfiles/internal/flagx"
	"github.com/dmitrijs2005/classfiles/internal/server/auth"
	"github.com/dmitrijs2005/classfiles/internal/server/config"
)

func main() {

	cfg := config.LoadConfig()
	if cfg.JWTSecret == "" {
		log.Fatal("no JWT secret configured (use -s, CLASSFILES_JWT_SECRET or jwt_secret)")
	}

	fs := flag.NewFlagSet("token", flag.ExitOnError)
	teacherID := fs.String("teacher", "", "teacher ID to put in the token")
	ttl := fs.Duration("ttl", 24*time.Hour, "token validity")
	_ = fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-teacher", "-ttl"}))

	if *teacherID == "" {
		log.Fatal("-teacher is required")
	}

	tok, err := auth.GenerateToken(*teacherID, []byte(cfg.JWTSecret), *ttl)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(tok)

}
