package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/relay/pkg/config"
	"github.com/Mindburn-Labs/relay/pkg/model"
	"github.com/Mindburn-Labs/relay/pkg/signature"
)

// runSeed provisions a tenant for local development and prints everything
// needed to exercise the relay, including a ready-to-paste signed request.
func runSeed(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	name := fs.String("name", "demo", "tenant name")
	secret := fs.String("secret", "whsec_demo_secret", "webhook signing secret")
	targetURL := fs.String("target", "", "delivery target URL (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	tenant, err := rt.Tenants.Create(ctx, *name)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	if err := rt.Tenants.SetSigningSecret(ctx, tenant.Token, *secret); err != nil {
		return fmt.Errorf("set signing secret: %w", err)
	}
	apiKey, err := rt.Keys.Issue(ctx, tenant.ID)
	if err != nil {
		return fmt.Errorf("issue api key: %w", err)
	}
	if *targetURL != "" {
		if _, err := rt.Targets.Upsert(ctx, &model.Target{TenantID: tenant.ID, URL: *targetURL}); err != nil {
			return fmt.Errorf("upsert target: %w", err)
		}
	}

	sample := []byte(`{"id":"evt_sample","event":"demo.ping","data":{"hello":"world"}}`)
	sig := signature.Header(sample, *secret, time.Now().Unix())

	fmt.Printf("tenant:      %s (%s)\n", tenant.Name, tenant.ID)
	fmt.Printf("token:       %s\n", tenant.Token)
	fmt.Printf("api key:     %s\n", apiKey)
	fmt.Printf("ingress url: %s/in/%s\n", cfg.FrontendURL, tenant.Token)
	if *targetURL != "" {
		fmt.Printf("target:      %s\n", *targetURL)
	}
	fmt.Printf("\ntry it:\n")
	fmt.Printf("  curl -X POST http://localhost:%s/in/%s \\\n", cfg.Port, tenant.Token)
	fmt.Printf("    -H 'Content-Type: application/json' \\\n")
	fmt.Printf("    -H 'Stripe-Signature: %s' \\\n", sig)
	fmt.Printf("    -d '%s'\n", sample)
	return nil
}
