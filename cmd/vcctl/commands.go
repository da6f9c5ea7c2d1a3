package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmerrifield20/verichain/internal/identity"
	"github.com/jmerrifield20/verichain/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newClient() (*client.Client, error) {
	var opts []client.Option
	if bearerToken != "" {
		opts = append(opts, client.WithBearerToken(bearerToken))
	}
	return client.New(serverURL, opts...)
}

func analyzeFile(ctx context.Context, c *client.Client, path string) (*client.Analysis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.Analyze(ctx, filepath.Base(path), f)
}

// ── analyze ──────────────────────────────────────────────────────────────────

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Classify a product image without certifying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		a, err := analyzeFile(cmd.Context(), c, args[0])
		if err != nil {
			return fmt.Errorf("analyze %s: %w", args[0], err)
		}
		return render(cmd.OutOrStdout(), outputFormat, a, func() error {
			return printAnalysis(cmd.OutOrStdout(), a)
		})
	},
}

// ── certify ──────────────────────────────────────────────────────────────────

var (
	certProductID   string
	certProductName string
	certConfidence  string
)

var certifyCmd = &cobra.Command{
	Use:   "certify",
	Short: "Issue a certification for an analysed product",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		rec, err := c.Certify(cmd.Context(), client.CertifyRequest{
			ProductID:   certProductID,
			ProductName: certProductName,
			Confidence:  certConfidence,
		})
		if err != nil {
			return fmt.Errorf("certify: %w", err)
		}
		return render(cmd.OutOrStdout(), outputFormat, rec, func() error {
			return printCertification(cmd.OutOrStdout(), rec)
		})
	},
}

func init() {
	certifyCmd.Flags().StringVar(&certProductID, "product-id", "", "product identifier returned by analyze (VRC-...)")
	certifyCmd.Flags().StringVar(&certProductName, "name", "", "product name returned by analyze")
	certifyCmd.Flags().StringVar(&certConfidence, "confidence", "", "confidence returned by analyze (e.g. 93.4%)")
	_ = certifyCmd.MarkFlagRequired("product-id")
	_ = certifyCmd.MarkFlagRequired("name")
}

// ── scan ─────────────────────────────────────────────────────────────────────

// scanResult holds the outcome of analysing and certifying one image.
type scanResult struct {
	File          string                `json:"file" yaml:"file"`
	Analysis      *client.Analysis      `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	Certification *client.Certification `json:"certification,omitempty" yaml:"certification,omitempty"`
	Error         string                `json:"error,omitempty" yaml:"error,omitempty"`
}

var scanParallel int

var scanCmd = &cobra.Command{
	Use:   "scan <image> [image] ...",
	Short: "Analyze and certify one or more product images",
	Long: `scan uploads each image for classification and certifies the result.

Images are processed concurrently; results are reported in argument order.
A failure on one image does not stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		results := scanFiles(cmd.Context(), c, args, scanParallel)

		w := cmd.OutOrStdout()
		if err := render(w, outputFormat, results, func() error {
			return printScanResults(w, results)
		}); err != nil {
			return err
		}
		for _, r := range results {
			if r.Error != "" {
				return errors.New("one or more images failed")
			}
		}
		return nil
	},
}

func init() {
	scanCmd.Flags().IntVar(&scanParallel, "parallel", 4, "maximum concurrent uploads")
}

func scanFiles(ctx context.Context, c *client.Client, files []string, parallel int) []scanResult {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]scanResult, len(files))

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			r := scanResult{File: path}
			a, err := analyzeFile(ctx, c, path)
			if err != nil {
				r.Error = err.Error()
				results[i] = r
				return nil
			}
			r.Analysis = a
			rec, err := c.Certify(ctx, client.CertifyRequest{
				ProductID:   a.ProductID,
				ProductName: a.ProductName,
				Confidence:  a.Confidence,
			})
			if err != nil {
				r.Error = err.Error()
			}
			r.Certification = rec
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ── history ──────────────────────────────────────────────────────────────────

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the most recent certifications, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		recs, err := c.History(cmd.Context())
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		return render(cmd.OutOrStdout(), outputFormat, recs, func() error {
			return printHistory(cmd.OutOrStdout(), recs)
		})
	},
}

// ── get ──────────────────────────────────────────────────────────────────────

var getCmd = &cobra.Command{
	Use:   "get <txHash>",
	Short: "Show a single retained certification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		rec, err := c.Certification(cmd.Context(), args[0])
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("certification %s not found (it may have been evicted)", args[0])
		}
		if err != nil {
			return fmt.Errorf("get certification: %w", err)
		}
		return render(cmd.OutOrStdout(), outputFormat, rec, func() error {
			return printCertification(cmd.OutOrStdout(), rec)
		})
	},
}

// ── health ───────────────────────────────────────────────────────────────────

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		h, err := c.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("health: %w", err)
		}
		return render(cmd.OutOrStdout(), outputFormat, h, func() error {
			return printHealth(cmd.OutOrStdout(), h)
		})
	},
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenSecret  string
	tokenIssuer  string
	tokenSubject string
	tokenTTL     time.Duration
	tokenScopes  []string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator token for POST /certify",
	Long: `token signs an operator token with the server's shared secret.

The secret and issuer must match auth.token_secret and auth.token_issuer in
the server configuration. The secret may also be supplied through
VERICHAIN_AUTH_TOKEN_SECRET.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := tokenSecret
		if secret == "" {
			secret = viper.GetString("auth.token_secret")
		}
		if secret == "" {
			return errors.New("no signing secret: pass --secret or set VERICHAIN_AUTH_TOKEN_SECRET")
		}
		issuer, err := identity.NewTokenIssuer([]byte(secret), tokenIssuer, tokenTTL)
		if err != nil {
			return err
		}
		tok, err := issuer.Issue(tokenSubject, tokenScopes)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "HMAC signing secret (at least 32 bytes)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "verichain", "token issuer")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", []string{identity.ScopeCertify}, "granted scopes")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the vcctl version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vcctl %s\n", strings.TrimSpace(version))
	},
}
