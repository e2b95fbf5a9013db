// Command tokengen mints bearer tokens from the configured JWT secret.
package main

import (
	"flag"
	"fmt"
	"os"

	"hookrelay.io/internal/auth"
	"hookrelay.io/internal/config"
	"hookrelay.io/internal/ids"
	"hookrelay.io/internal/obs"
)

func main() {
	var (
		kind = flag.String("kind", "org", "Token kind: org, management or app")
		org  = flag.String("org", "", "Organization id (default: the default organization)")
		app  = flag.String("app", "", "Application id (kind=app only)")
	)
	flag.Parse()
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	tokens, err := auth.NewTokens(auth.NewKeys([]byte(cfg.Auth.JWTSecret)), cfg.Auth.Issuer)
	if err != nil {
		log.WithError(err).Fatal("init tokens")
	}

	orgID := ids.OrganizationID(*org)
	if orgID == "" {
		orgID = ids.DefaultOrgID
	}

	var token string
	switch *kind {
	case "org":
		token, err = tokens.GenerateOrgToken(orgID)
	case "management":
		token, err = tokens.GenerateManagementToken()
	case "app":
		if *app == "" {
			fmt.Fprintln(os.Stderr, "-app is required for kind=app")
			os.Exit(2)
		}
		token, err = tokens.GenerateAppToken(orgID, ids.ApplicationID(*app))
	default:
		fmt.Fprintf(os.Stderr, "unknown kind %q\n", *kind)
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Fatal("mint token")
	}
	fmt.Println(token)
}
