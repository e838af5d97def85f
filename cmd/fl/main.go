package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
	"fieldline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "fl",
	Short: "Fieldline CLI",
	Long: `Fieldline tracks field-work tasks with an append-only action log.
Core concepts:
- Workspace: the .fieldline directory holding the database; fieldline.yml holds config.
- Task: a unit of field work; its status is derived from its action log, never set directly.
- Actions: start/pause/resume/complete/photo entries; photo is evidence only and moves nothing.
- Preconditions: dependencies, proof tokens, and geofences gate start/resume.
- Visibility: org, assignees, groups, assignees_groups, or admins decides who sees a task.
- Audit: every tracked edit records a field-level diff; view with 'fl task audit'.
- Journal: the diary of everything that happened, view with 'fl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FIELDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("role", "superadmin", "actor role for local commands")
	rootCmd.PersistentFlags().String("org", "", "org id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("role", rootCmd.PersistentFlags().Lookup("role"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(groupCmd())
	rootCmd.AddCommand(clockingCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// localActor is the actor CLI commands run as. Local commands trust the
// operator; role defaults to superadmin so workspace admin just works.
func localActor() domain.Actor {
	scope := domain.GlobalScope()
	if org := viper.GetString("org"); org != "" {
		scope = domain.OrgScopeFor(org)
	}
	return domain.Actor{
		ID:    viper.GetString("actor-id"),
		Scope: scope,
		Role:  domain.ParseRole(viper.GetString("role")),
	}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace, viper.GetString("org"))
	if err != nil {
		return err
	}
	e, err := engine.New(conn, cfg)
	if err != nil {
		return err
	}
	return fn(ctx, e)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace config",
		Long:  "fieldline.yml holds the org id, the audit policy for unresolved editors, lookup limits, and the default task visibility.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default fieldline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" {
				return fmt.Errorf("--org-id required")
			}
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(orgID)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org-id", "", "organization id")
	_ = cmd.MarkFlagRequired("org-id")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate fieldline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrations applied:", db.Path(viper.GetString("workspace")))
			return nil
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskActionCmd())
	task.AddCommand(taskTimesheetCmd())
	task.AddCommand(taskAuditCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var title, description, visibility, projectID string
	var assignees, groups, deps []string
	var requireToken, requireLocation bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				draft := engine.TaskDraft{
					Title:            title,
					Description:      description,
					Visibility:       domain.Visibility(visibility),
					AssignedUserIDs:  assignees,
					AssignedGroupIDs: groups,
					DependentTaskIDs: deps,
					RequireToken:     requireToken,
					RequireLocation:  requireLocation,
				}
				if projectID != "" {
					draft.ProjectID = &projectID
				}
				t, err := e.CreateTask(ctx, localActor(), draft)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&visibility, "visibility", "", "visibility mode")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringSliceVar(&assignees, "assignee", nil, "assigned user id (repeatable)")
	cmd.Flags().StringSliceVar(&groups, "group", nil, "assigned group id (repeatable)")
	cmd.Flags().StringSliceVar(&deps, "depends-on", nil, "dependent task id (repeatable)")
	cmd.Flags().BoolVar(&requireToken, "require-token", false, "require a proof token to start")
	cmd.Flags().BoolVar(&requireLocation, "require-location", false, "require a location inside a fence to start")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var status, projectID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx, localActor(), engine.TaskQuery{
					Status:    status,
					ProjectID: projectID,
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Visibility", "Assignees", "Version"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Visibility, strings.Join(t.AssignedUserIDs, ","), t.Version})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&projectID, "project", "", "project filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, localActor(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskActionCmd() *cobra.Command {
	var at, note, token string
	var lat, lng float64
	var hasPoint, override bool
	cmd := &cobra.Command{
		Use:   "action <task-id> <start|pause|resume|complete|photo>",
		Short: "Append a lifecycle action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req := engine.ActionRequest{
					Action:   domain.Action(args[1]),
					At:       at,
					Note:     note,
					Token:    token,
					Override: override,
				}
				if hasPoint {
					req.Point = &domain.LatLng{Lat: lat, Lng: lng}
				}
				t, err := e.PerformAction(ctx, localActor(), args[0], req)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "event timestamp (RFC3339, default now)")
	cmd.Flags().StringVar(&note, "note", "", "note")
	cmd.Flags().StringVar(&token, "token", "", "proof token")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	cmd.Flags().BoolVar(&hasPoint, "with-location", false, "send --lat/--lng as the location")
	cmd.Flags().BoolVar(&override, "override", false, "privileged precondition override")
	return cmd
}

func taskTimesheetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timesheet <id>",
		Short: "Show derived work time for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ts, err := e.TaskTimesheet(ctx, localActor(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ts)
				}
				fmt.Printf("task %s: %s, %d minutes\n", ts.TaskID, ts.Status, ts.ElapsedMinutes)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"At", "Action", "Actor", "Note"})
				for _, ev := range ts.Events {
					tw.AppendRow(table.Row{ev.At, ev.Action, ev.ActorID, ev.Note})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func taskAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <id>",
		Short: "Show a task's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.AuditTrail(ctx, localActor(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, localActor(), engine.ProjectDraft{Name: name})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx, localActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage directory users"}
	user.AddCommand(userAddCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var id, email, username string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a directory user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.RegisterUser(ctx, localActor(), domain.User{ID: id, Email: email, Username: username})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&username, "username", "", "username")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func groupCmd() *cobra.Command {
	group := &cobra.Command{Use: "group", Short: "Manage groups"}
	group.AddCommand(groupSetCmd())
	return group
}

func groupSetCmd() *cobra.Command {
	var id, name string
	var members []string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or replace a group and its members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				g, err := e.RegisterGroup(ctx, localActor(), domain.Group{ID: id, Name: name, MemberIDs: members})
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "group id")
	cmd.Flags().StringVar(&name, "name", "", "group name")
	cmd.Flags().StringSliceVar(&members, "member", nil, "member user id (repeatable)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func clockingCmd() *cobra.Command {
	clocking := &cobra.Command{Use: "clocking", Short: "Manage clockings"}
	clocking.AddCommand(clockingListCmd())
	return clocking
}

func clockingListCmd() *cobra.Command {
	var userID, taskID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clockings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListClockings(ctx, localActor(), engine.ClockingQuery{
					UserID: userID,
					TaskID: taskID,
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user filter")
	cmd.Flags().StringVar(&taskID, "task", "", "task filter")
	cmd.Flags().IntVar(&limit, "limit", 100, "max results")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "System journal",
		Long:  "The diary of everything that happened: task actions, edits, fence imports, and bulk clockings.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var afterID int64
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail journal events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.JournalTail(ctx, localActor(), afterID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().Int64Var(&afterID, "after-id", 0, "return events after this id")
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			e, err := engine.New(conn, cfg)
			if err != nil {
				return err
			}
			authCfg := server.AuthConfig{
				JWTSecret:       os.Getenv("FIELDLINE_JWT_SECRET"),
				DevLoginEnabled: devLogin,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("FIELDLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Fieldline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login")
	return cmd
}
