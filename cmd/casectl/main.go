// Command casectl is the operator CLI: it mints session tokens, runs the
// approval anomaly scan against postgres and probes the gRPC health service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"casedesk.org/internal/audit/anomaly"
	"casedesk.org/internal/auth"
	"casedesk.org/internal/obs"
	"casedesk.org/internal/store/pg"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "casedesk",
		Usage: "casedesk operator tooling",
		Commands: []*cli.Command{
			tokenCommand(),
			scanCommand(),
			healthCommand(),
		},
	}
	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Session token helpers",
		Commands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "Sign a session token for a principal",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret", Sources: cli.EnvVars("CASEDESK_AUTH_SECRET"), Required: true},
					&cli.StringFlag{Name: "issuer", Value: "casedesk", Sources: cli.EnvVars("CASEDESK_AUTH_ISSUER")},
					&cli.StringFlag{Name: "sub", Required: true, Usage: "user id"},
					&cli.StringFlag{Name: "tenant", Required: true},
					&cli.StringFlag{Name: "role", Required: true, Usage: "LAWYER, STAFF, CLIENT, TECH_SUPPORT or ADMIN"},
					&cli.StringFlag{Name: "license", Usage: "bar license number"},
					&cli.StringSliceFlag{Name: "elevate", Usage: "time-boxed extra permission, e.g. audit.read"},
					&cli.DurationFlag{Name: "elevate-for", Value: time.Hour},
					&cli.DurationFlag{Name: "ttl", Value: 8 * time.Hour},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					authority, err := auth.NewTokenAuthority(c.String("secret"), c.String("issuer"))
					if err != nil {
						return err
					}
					role, err := auth.ParseRole(c.String("role"))
					if err != nil {
						return err
					}
					p := auth.Principal{
						ID:            c.String("sub"),
						TenantID:      c.String("tenant"),
						Role:          role,
						LicenseNumber: c.String("license"),
					}
					if perms := c.StringSlice("elevate"); len(perms) > 0 {
						p.Elevation = &auth.Elevation{ExpiresAt: time.Now().Add(c.Duration("elevate-for"))}
						for _, perm := range perms {
							p.Elevation.Permissions = append(p.Elevation.Permissions, auth.Permission(strings.TrimSpace(perm)))
						}
					}
					token, exp, err := authority.Issue(p, c.Duration("ttl"))
					if err != nil {
						return err
					}
					return printJSON(map[string]any{"token": token, "expiresAt": exp})
				},
			},
		},
	}
}

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "Scan a tenant's approval history for quick and bulk approvals",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dsn", Sources: cli.EnvVars("CASEDESK_PG_DSN"), Required: true},
			&cli.StringFlag{Name: "tenant", Required: true},
			&cli.DurationFlag{Name: "lookback", Value: anomaly.DefaultQuick.Lookback},
			&cli.DurationFlag{Name: "threshold", Value: anomaly.DefaultQuick.Threshold},
			&cli.IntFlag{Name: "quick-min", Value: anomaly.DefaultQuick.MinCount},
			&cli.DurationFlag{Name: "bucket", Value: anomaly.DefaultBulk.Bucket},
			&cli.IntFlag{Name: "bulk-min", Value: anomaly.DefaultBulk.MinCount},
			&cli.BoolFlag{Name: "fail-on-findings", Usage: "exit non-zero when anything is flagged"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger, err := obs.NewLogger("production")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			st, err := pg.Open(c.String("dsn"))
			if err != nil {
				return err
			}
			defer st.Close()

			scanner := anomaly.NewScanner(st.Audit(),
				anomaly.QuickConfig{Lookback: c.Duration("lookback"), Threshold: c.Duration("threshold"), MinCount: int(c.Int("quick-min"))},
				anomaly.BulkConfig{Bucket: c.Duration("bucket"), MinCount: int(c.Int("bulk-min")), Lookback: c.Duration("lookback")},
				logger)
			report, err := scanner.Scan(ctx, c.String("tenant"))
			if err != nil {
				return err
			}
			logger.Info("scan complete",
				zap.String("tenant_id", report.TenantID),
				zap.Int("scanned", report.Scanned),
				zap.Bool("flagged", report.Flagged()))
			if err := printJSON(report); err != nil {
				return err
			}
			if report.Flagged() && c.Bool("fail-on-findings") {
				return cli.Exit("approval anomalies flagged", 3)
			}
			return nil
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Query the gRPC health service of a running casedesk-api",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "localhost:9090", Sources: cli.EnvVars("CASEDESK_GRPC_ADDR")},
			&cli.StringFlag{Name: "service", Value: "casedesk-api"},
			&cli.DurationFlag{Name: "timeout", Value: 3 * time.Second},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			conn, err := grpc.NewClient(c.String("addr"), grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial %s: %w", c.String("addr"), err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer cancel()
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: c.String("service")})
			if err != nil {
				return err
			}
			fmt.Println(resp.GetStatus().String())
			if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return cli.Exit("not serving", 1)
			}
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
