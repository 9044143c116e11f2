package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/davidahmann/parliament/internal/api"
	"github.com/davidahmann/parliament/internal/crypto"
	"github.com/davidahmann/parliament/internal/gateway"
	"github.com/davidahmann/parliament/internal/ledger"
	"github.com/davidahmann/parliament/internal/minds"
	"github.com/davidahmann/parliament/internal/parliament"
	"github.com/davidahmann/parliament/internal/signals"
	"github.com/davidahmann/parliament/pkg/types"
)

const defaultAddr = "http://localhost:8080"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type remoteFlags struct {
	addr  string
	token string
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "addr", envOrDefault("PARLIAMENT_ADDR", defaultAddr), "gateway address")
	cmd.Flags().StringVar(&f.token, "token", envOrDefault("PARLIAMENT_TOKEN", os.Getenv("PARLIAMENT_DEV_TOKEN")), "bearer token")
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "parliament",
		Short:        "Classify, evaluate and audit requests against the mind panel",
		SilenceUsage: true,
	}
	root.AddCommand(
		newClassifyCmd(),
		newSignalsCmd(),
		newEvaluateCmd(),
		newRulesCmd(),
		newAuditCmd(),
		newKeygenCmd(),
	)
	return root
}

func newClassifyCmd() *cobra.Command {
	var rulesPath string
	cmd := &cobra.Command{
		Use:   "classify [text...]",
		Short: "Print the intent for text (reads stdin when no text is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			classifier, err := gateway.LoadClassifier(rulesPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), classifier.Classify(text))
			return nil
		},
	}
	cmd.Flags().StringVar(&rulesPath, "rules", "", "intent rule file (default: embedded rules)")
	return cmd
}

func newSignalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signals [text...]",
		Short: "Print extracted entities, constraints and questions as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), signals.ExtractSignals(text))
		},
	}
}

func newEvaluateCmd() *cobra.Command {
	var (
		req          api.EvaluateRequest
		retryReasons []string
		retryIntent  string
		retry        bool
		parallel     bool
		rulesPath    string
	)
	cmd := &cobra.Command{
		Use:   "evaluate [text...]",
		Short: "Run a local evaluation pass and print the decision as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := inputText(cmd, args)
			if err != nil {
				return err
			}
			req.Text = text
			if retry || len(retryReasons) > 0 || retryIntent != "" {
				req.Retry = &api.RetryRequest{Intent: types.Direction(strings.ToUpper(retryIntent)), Reasons: retryReasons}
			}

			classifier, err := gateway.LoadClassifier(rulesPath)
			if err != nil {
				return err
			}
			priv, _, err := crypto.GenerateKeyPair()
			if err != nil {
				return err
			}
			service, err := api.NewDecisionService(api.ServiceOptions{
				Engine:     parliament.NewEngine(minds.DefaultPanel(), parliament.Options{Parallel: parallel}),
				Classifier: classifier,
				Log:        ledger.NewInMemoryLog(),
				Signer:     crypto.NewEd25519Signer("local", priv),
			})
			if err != nil {
				return err
			}
			resp, err := service.Decide(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringVar(&req.SessionID, "session", "", "session id")
	cmd.Flags().StringArrayVar(&retryReasons, "retry-reason", nil, "prior failure reason (repeatable); enables the failure minds")
	cmd.Flags().StringVar(&retryIntent, "retry-intent", "", "direction of the failed attempt (APPROVE, REVISE, REJECT)")
	cmd.Flags().BoolVar(&retry, "retry", false, "evaluate as a retry even without reasons")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "run minds concurrently")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "intent rule file (default: embedded rules)")
	return cmd
}

func newRulesCmd() *cobra.Command {
	rules := &cobra.Command{Use: "rules", Short: "Inspect intent rule files"}
	rules.AddCommand(&cobra.Command{
		Use:   "lint <rules_path>",
		Short: "Validate an intent rule file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := signals.LoadRules(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok version=%s rules=%d rules_hash=%s\n", loaded.Rules.Version, len(loaded.Rules.Rules), loaded.Hash)
			return nil
		},
	})
	return rules
}

func newAuditCmd() *cobra.Command {
	audit := &cobra.Command{Use: "audit", Short: "Read and verify audit records on a gateway"}

	var (
		listRemote remoteFlags
		sessionID  string
		limit      int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List audit records, optionally for one session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if sessionID != "" {
				q.Set("session_id", sessionID)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			body, status, err := httpGet(cmd.Context(), listRemote.addr+"/v1/audit?"+q.Encode(), listRemote.token)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("audit list failed: %s", strings.TrimSpace(string(body)))
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}
	listRemote.register(list)
	list.Flags().StringVar(&sessionID, "session", "", "session id")
	list.Flags().IntVar(&limit, "limit", 0, "maximum records (default: server default)")

	var (
		verifyRemote remoteFlags
		jsonOut      bool
	)
	verify := &cobra.Command{
		Use:   "verify <record_id>",
		Short: "Check a record's digest and signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, status, err := httpGet(cmd.Context(), verifyRemote.addr+"/v1/verify/"+url.PathEscape(args[0]), verifyRemote.token)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("verify failed: %s", strings.TrimSpace(string(body)))
			}
			if jsonOut {
				_, err := cmd.OutOrStdout().Write(body)
				return err
			}
			var res api.VerifyResult
			if err := json.Unmarshal(body, &res); err != nil {
				return fmt.Errorf("invalid response: %w", err)
			}
			if res.Valid {
				fmt.Fprintf(cmd.OutOrStdout(), "valid=true record_id=%s key_id=%s\n", res.RecordID, res.KeyID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid=false record_id=%s error=%s\n", res.RecordID, res.Error)
			return errors.New("record failed verification")
		},
	}
	verifyRemote.register(verify)
	verify.Flags().BoolVar(&jsonOut, "json", false, "print raw JSON response")

	var (
		exportRemote remoteFlags
		exportOut    string
		exportSess   string
		exportLimit  int
	)
	export := &cobra.Command{
		Use:   "export",
		Short: "Download a zip pack of signed records for offline verification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if exportSess != "" {
				q.Set("session_id", exportSess)
			}
			if exportLimit > 0 {
				q.Set("limit", strconv.Itoa(exportLimit))
			}
			body, status, err := httpGet(cmd.Context(), exportRemote.addr+"/v1/export?"+q.Encode(), exportRemote.token)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("export failed: %s", strings.TrimSpace(string(body)))
			}
			if err := os.WriteFile(exportOut, body, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", exportOut, len(body))
			return nil
		},
	}
	exportRemote.register(export)
	export.Flags().StringVar(&exportOut, "out", "parliament-audit.zip", "output path")
	export.Flags().StringVar(&exportSess, "session", "", "session id")
	export.Flags().IntVar(&exportLimit, "limit", 0, "maximum records (default: server default)")

	audit.AddCommand(list, verify, export)
	return audit
}

func newKeygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Write a new Ed25519 signing seed (hex) and print the public key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			priv, pub, err := crypto.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, []byte("hex:"+hex.EncodeToString(priv.Seed())+"\n"), 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s public_key=hex:%s\n", out, hex.EncodeToString(pub))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "parliament-signing.key", "output path for the private seed")
	return cmd
}

func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func httpGet(ctx context.Context, target, token string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOrDefault(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
