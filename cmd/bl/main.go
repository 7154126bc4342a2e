package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bidline/internal/app"
	"bidline/internal/config"
	"bidline/internal/documents"
	"bidline/internal/domain"
	"bidline/internal/engine"
	"bidline/internal/migrate"
	"bidline/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Bidline CLI",
	Long: `Bidline runs the engagement lifecycle of a freelance marketplace.
- Project: posted by a client; open -> pending_contract -> in_progress -> awaiting_review -> completed (or cancelled).
- Bid: a provider's offer on an open project; accepting one rejects the rest.
- Contract: signed by the client, counter-signed by the accepted provider; full signature starts the work.
- Work submission and fund release close the project; escrow only ever moves forward.
- Event log: every change is audited, view with 'bl log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BIDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (bidline.yml or bidline.toml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "actor performing the command")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(bidCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(workCmd())
	rootCmd.AddCommand(fundsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(profileCmd())
}

// envOverrides are config keys that BIDLINE_* variables or bound flags may
// replace after the config file is read.
var envOverrides = map[string]func(*config.Config, *viper.Viper, string){
	"server.addr":      func(c *config.Config, v *viper.Viper, k string) { c.Server.Addr = v.GetString(k) },
	"server.base_path": func(c *config.Config, v *viper.Viper, k string) { c.Server.BasePath = v.GetString(k) },
	"server.grpc_addr": func(c *config.Config, v *viper.Viper, k string) { c.Server.GRPCAddr = v.GetString(k) },
	"server.dev_login": func(c *config.Config, v *viper.Viper, k string) { c.Server.DevLogin = v.GetBool(k) },
	"database.driver":  func(c *config.Config, v *viper.Viper, k string) { c.Database.Driver = v.GetString(k) },
	"database.dsn":     func(c *config.Config, v *viper.Viper, k string) { c.Database.DSN = v.GetString(k) },
	"auth.jwt_secret":  func(c *config.Config, v *viper.Viper, k string) { c.Auth.JWTSecret = v.GetString(k) },
	"auth.redis_url":   func(c *config.Config, v *viper.Viper, k string) { c.Auth.RedisURL = v.GetString(k) },
	"log.level":        func(c *config.Config, v *viper.Viper, k string) { c.Log.Level = v.GetString(k) },
	"log.format":       func(c *config.Config, v *viper.Viper, k string) { c.Log.Format = v.GetString(k) },
}

func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	cfg, err := app.LoadConfig(workspace, viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	for key, apply := range envOverrides {
		if viper.IsSet(key) {
			apply(cfg, viper.GetViper(), key)
		}
	}
	return cfg, nil
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var logOut io.Writer = io.Discard
	if viper.GetString("log.level") == "debug" {
		logOut = os.Stderr
	}
	rt, err := app.Open(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func actorID() (string, error) {
	id := strings.TrimSpace(viper.GetString("actor-id"))
	if id == "" {
		return "", fmt.Errorf("--actor-id (or BIDLINE_ACTOR_ID) is required")
	}
	return id, nil
}

// callingActor loads the --actor-id actor for commands whose view depends
// on the actor kind.
func callingActor(ctx context.Context, rt *app.Runtime) (domain.Actor, error) {
	id, err := actorID()
	if err != nil {
		return domain.Actor{}, err
	}
	return rt.Engine.Repo.GetActor(ctx, id)
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (and gRPC health when configured)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			rt, err := app.Open(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer rt.Close()
			fmt.Printf("Serving Bidline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Server.BasePath)
			return rt.Serve(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("base-path", "", "API base path (overrides server.base_path)")
	cmd.Flags().String("grpc-addr", "", "gRPC health listen address")
	cmd.Flags().Bool("dev-login", false, "enable POST /auth/dev/login")
	bindIfChanged(cmd, "addr", "server.addr")
	bindIfChanged(cmd, "base-path", "server.base_path")
	bindIfChanged(cmd, "grpc-addr", "server.grpc_addr")
	bindIfChanged(cmd, "dev-login", "server.dev_login")
	return cmd
}

// bindIfChanged binds a flag to a config key so it only overrides the file
// value when given on the command line.
func bindIfChanged(cmd *cobra.Command, flag, key string) {
	prev := cmd.PreRunE
	cmd.PreRunE = func(c *cobra.Command, args []string) error {
		if prev != nil {
			if err := prev(c, args); err != nil {
				return err
			}
		}
		if f := c.Flags().Lookup(flag); f != nil && f.Changed {
			return viper.BindPFlag(key, f)
		}
		return nil
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				v, err := migrate.Version(rt.DB)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"schema_version": v, "driver": rt.Config.Database.Driver})
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default bidline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfgCmd
}

func actorCmd() *cobra.Command {
	act := &cobra.Command{Use: "actor", Short: "Manage registered actors"}
	act.AddCommand(actorCreateCmd())
	act.AddCommand(actorDeactivateCmd())
	act.AddCommand(actorListCmd())
	return act
}

func actorCreateCmd() *cobra.Command {
	var a domain.Actor
	var kind string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a client or service provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Kind = domain.ActorKind(kind)
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				created, err := rt.Engine.RegisterActor(ctx, a, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&a.ID, "id", "", "actor id (generated when empty)")
	cmd.Flags().StringVar(&kind, "kind", "", "client or service_provider")
	cmd.Flags().StringVar(&a.Name, "name", "", "display name")
	cmd.Flags().StringVar(&a.Email, "email", "", "contact email")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func actorDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <actor-id>",
		Short: "Deactivate an actor; its credentials stop working",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.DeactivateActor(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("deactivated", args[0])
				return nil
			})
		},
	}
}

func actorListCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Repo.ListActors(ctx, domain.ActorKind(kind))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Kind", "Name", "Email", "Active")
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Kind, a.Name, a.Email, a.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind")
	return cmd
}

func tokenCmd() *cobra.Command {
	tok := &cobra.Command{Use: "token", Short: "Bearer tokens"}
	tok.AddCommand(&cobra.Command{
		Use:   "mint <actor-id>",
		Short: "Mint a bearer token for an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if rt.Config.Auth.JWTSecret == "" {
					return fmt.Errorf("auth.jwt_secret is required to mint tokens")
				}
				token, actor, err := rt.Gateway.Issue(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"token": token, "actor": actor})
				}
				fmt.Println(token)
				return nil
			})
		},
	})
	return tok
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create <actor-id>",
		Short: "Issue an API key; the plain key is shown once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				plain, key, err := rt.Engine.IssueAPIKey(ctx, args[0], name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": key.ID, "actor_id": key.ActorID, "name": key.Name, "key": plain})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	keys.AddCommand(create)
	return keys
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectCancelCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var in engine.ProjectInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a new project as the client",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			in.ClientID = id
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.CreateProject(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.BudgetRange, "budget", "", "budget range, e.g. 1000-2000")
	cmd.Flags().StringVar(&in.Currency, "currency", "", "currency code")
	cmd.Flags().StringVar(&in.Duration, "duration", "", "expected duration")
	cmd.Flags().StringSliceVar(&in.Skills, "skill", nil, "required skill (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List own projects (client) or browse by status (provider)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				actor, err := callingActor(ctx, rt)
				if err != nil {
					return err
				}
				items, err := rt.Engine.Projects(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Status", "Escrow", "Budget", "Skills")
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.Status, p.Escrow, strings.TrimSpace(p.BudgetRange + " " + p.Currency), strings.Join(p.Skills, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				actor, err := callingActor(ctx, rt)
				if err != nil {
					return err
				}
				p, err := rt.Engine.Project(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <project-id>",
		Short: "Cancel a project that has not completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.CancelProject(ctx, args[0], id, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the event log")
	return cmd
}

func bidCmd() *cobra.Command {
	bid := &cobra.Command{Use: "bid", Short: "Submit, amend and accept bids"}
	bid.AddCommand(bidSubmitCmd())
	bid.AddCommand(bidAmendCmd())
	bid.AddCommand(bidAcceptCmd())
	bid.AddCommand(bidListCmd())
	return bid
}

func bidSubmitCmd() *cobra.Command {
	var in engine.BidInput
	cmd := &cobra.Command{
		Use:   "submit <project-id>",
		Short: "Bid on an open project as a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			in.ProjectID, in.ProviderID = args[0], id
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				b, err := rt.Engine.SubmitBid(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().Int64Var(&in.Amount, "amount", 0, "amount in minor units")
	cmd.Flags().StringVar(&in.Currency, "currency", "", "currency code")
	cmd.Flags().StringVar(&in.CoverLetter, "cover-letter", "", "cover letter")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("currency")
	return cmd
}

func bidAmendCmd() *cobra.Command {
	var (
		amount              int64
		currency, letter    string
		resetPendingRequest bool
	)
	cmd := &cobra.Command{
		Use:   "amend <bid-id>",
		Short: "Amend a pending bid; only given flags change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			var patch domain.BidPatch
			if cmd.Flags().Changed("amount") {
				patch.Amount = &amount
			}
			if cmd.Flags().Changed("currency") {
				patch.Currency = &currency
			}
			if cmd.Flags().Changed("cover-letter") {
				patch.CoverLetter = &letter
			}
			if resetPendingRequest {
				pending := domain.BidPending
				patch.Status = &pending
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				b, err := rt.Engine.AmendBid(ctx, args[0], id, patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "new amount")
	cmd.Flags().StringVar(&currency, "currency", "", "new currency")
	cmd.Flags().StringVar(&letter, "cover-letter", "", "new cover letter")
	cmd.Flags().BoolVar(&resetPendingRequest, "pending", false, "send status=pending with the patch")
	return cmd
}

func bidAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <project-id> <bid-id>",
		Short: "Accept a bid as the project's client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				b, p, err := rt.Engine.AcceptBid(ctx, args[0], args[1], id)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"bid": b, "project": p})
			})
		},
	}
}

func bidListCmd() *cobra.Command {
	var projectID string
	var f repo.BidFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bids on a project (client) or your own bids (provider)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				actor, err := callingActor(ctx, rt)
				if err != nil {
					return err
				}
				var items []domain.Bid
				if actor.Client() {
					if projectID == "" {
						return fmt.Errorf("--project is required for clients")
					}
					items, err = rt.Engine.ProjectBids(ctx, projectID, actor.ID, f)
				} else {
					f.ProjectID = projectID
					items, err = rt.Engine.ProviderBids(ctx, actor.ID, f)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Project", "Provider", "Amount", "Currency", "Status")
				for _, b := range items {
					tw.AppendRow(table.Row{b.ID, b.ProjectID, b.ServiceProviderID, b.Amount, b.Currency, b.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func contractCmd() *cobra.Command {
	c := &cobra.Command{Use: "contract", Short: "Create and sign contracts"}
	c.AddCommand(contractCreateCmd())
	c.AddCommand(contractSignCmd())
	c.AddCommand(contractListCmd())
	return c
}

func contractCreateCmd() *cobra.Command {
	var in engine.ContractInput
	var signatureFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a client-signed contract for the accepted bid",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			in.ClientID = id
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if signatureFile != "" {
					ref, err := storeFile(ctx, rt, in.ClientID, signatureFile, documents.KindSignature)
					if err != nil {
						return err
					}
					in.SignatureRef = ref
				}
				c, err := rt.Engine.CreateContract(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&in.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&in.BidID, "bid", "", "accepted bid id")
	cmd.Flags().StringVar(&in.Terms, "terms", "", "contract terms")
	cmd.Flags().StringVar(&in.SignatureRef, "signature", "", "signature document reference")
	cmd.Flags().StringVar(&signatureFile, "signature-file", "", "upload this signature file first")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("bid")
	return cmd
}

func contractSignCmd() *cobra.Command {
	var signature, signatureFile string
	cmd := &cobra.Command{
		Use:   "sign <contract-id>",
		Short: "Counter-sign a contract as the accepted provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if signatureFile != "" {
					ref, err := storeFile(ctx, rt, id, signatureFile, documents.KindSignature)
					if err != nil {
						return err
					}
					signature = ref
				}
				c, err := rt.Engine.CounterSignContract(ctx, args[0], id, signature)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&signature, "signature", "", "signature document reference")
	cmd.Flags().StringVar(&signatureFile, "signature-file", "", "upload this signature file first")
	return cmd
}

func contractListCmd() *cobra.Command {
	var f repo.ContractFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts you are party to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				actor, err := callingActor(ctx, rt)
				if err != nil {
					return err
				}
				items, err := rt.Engine.Contracts(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Project", "Bid", "Client", "Provider", "Status")
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.ProjectID, c.BidID, c.ClientID, c.ServiceProviderID, c.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum rows")
	return cmd
}

func workCmd() *cobra.Command {
	var githubLink, document, file string
	submit := &cobra.Command{
		Use:   "submit <project-id>",
		Short: "Submit delivered work for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if file != "" {
					ref, err := storeFile(ctx, rt, id, file, documents.KindWork)
					if err != nil {
						return err
					}
					document = ref
				}
				p, err := rt.Engine.SubmitWork(ctx, args[0], id, githubLink, document)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	submit.Flags().StringVar(&githubLink, "github-link", "", "repository link")
	submit.Flags().StringVar(&document, "document", "", "work document reference")
	submit.Flags().StringVar(&file, "file", "", "upload this PDF first")
	work := &cobra.Command{Use: "work", Short: "Work submission"}
	work.AddCommand(submit)
	return work
}

func fundsCmd() *cobra.Command {
	funds := &cobra.Command{Use: "funds", Short: "Escrow"}
	funds.AddCommand(&cobra.Command{
		Use:   "release <project-id>",
		Short: "Release funds and complete the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.ReleaseFunds(ctx, args[0], id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	})
	return funds
}

func logCmd() *cobra.Command {
	logs := &cobra.Command{Use: "log", Short: "Audit event log"}
	logs.AddCommand(logTailCmd())
	return logs
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "TS", "Type", "Project", "Entity", "Actor", "Payload")
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.ProjectID, e.EntityKind + ":" + e.EntityID, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&f.Limit, "limit", "n", 20, "number of events")
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func profileCmd() *cobra.Command {
	prof := &cobra.Command{Use: "profile", Short: "Actor profiles"}
	prof.AddCommand(&cobra.Command{
		Use:   "show [actor-id]",
		Short: "Show your profile, or the public profile of another actor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				viewer, err := callingActor(ctx, rt)
				if err != nil {
					return err
				}
				target := viewer.ID
				if len(args) == 1 {
					target = args[0]
				}
				p, err := rt.Engine.Profile(ctx, target, viewer)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	})

	var sets []string
	update := &cobra.Command{
		Use:   "update",
		Short: "Set profile fields, e.g. --set company_name=Acme --set skills=go,sql",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			patch, err := parseProfileSets(sets)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.UpdateProfile(ctx, id, patch)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	update.Flags().StringArrayVar(&sets, "set", nil, "field=value, repeatable")
	prof.AddCommand(update)

	var kycFile string
	kyc := &cobra.Command{
		Use:   "kyc",
		Short: "Upload and attach an identity document",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := actorID()
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ref, err := storeFile(ctx, rt, id, kycFile, documents.KindKYC)
				if err != nil {
					return err
				}
				p, err := rt.Engine.AttachKYC(ctx, id, ref)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	kyc.Flags().StringVar(&kycFile, "file", "", "PDF or image of the identity document")
	_ = kyc.MarkFlagRequired("file")
	prof.AddCommand(kyc)
	return prof
}

// parseProfileSets turns field=value pairs into a profile patch. skills is
// comma-separated and hourly_rate an integer.
func parseProfileSets(sets []string) (domain.ProfilePatch, error) {
	fields := map[string]any{}
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return domain.ProfilePatch{}, fmt.Errorf("--set %q: expected field=value", kv)
		}
		switch k = strings.TrimSpace(k); k {
		case "skills":
			fields[k] = strings.Split(v, ",")
		case "hourly_rate":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return domain.ProfilePatch{}, fmt.Errorf("hourly_rate: %w", err)
			}
			fields[k] = n
		default:
			fields[k] = v
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return domain.ProfilePatch{}, err
	}
	var patch domain.ProfilePatch
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		return domain.ProfilePatch{}, fmt.Errorf("profile fields: %w", err)
	}
	return patch, nil
}

// --- helpers ---

// storeFile uploads a local file as ownerID, the same way the HTTP upload
// route does.
func storeFile(ctx context.Context, rt *app.Runtime, ownerID, path, kind string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	ref, err := rt.Documents.Store(ctx, content, kind, filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := rt.Engine.RecordDocument(ctx, ref, kind, ownerID, int64(len(content))); err != nil {
		_ = rt.Documents.Remove(ref)
		return "", err
	}
	return ref, nil
}

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(headers))
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
