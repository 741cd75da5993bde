package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ngoclaw/gemini-go/internal/infrastructure/config"
	"github.com/ngoclaw/gemini-go/internal/infrastructure/logger"
	apperrors "github.com/ngoclaw/gemini-go/pkg/errors"
	"github.com/ngoclaw/gemini-go/pkg/gemini"
)

const cliName = "gemini"

// Options wires the command tree to its environment. Zero values use the
// process stdio, config.Load and time.Now.
type Options struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	LoadConfig func() (*config.Config, error)
	Now        func() time.Time
}

type app struct {
	opts Options
}

// NewRootCommand builds the "gemini" command with its subcommands.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:           cliName,
		Short:         "Talk to the Gemini generative language API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if opts.In != nil {
		root.SetIn(opts.In)
	}
	if opts.Out != nil {
		root.SetOut(opts.Out)
	}
	if opts.Err != nil {
		root.SetErr(opts.Err)
	}

	root.PersistentFlags().String("base-url", "", "API base URL (overrides config)")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-output", "", "log destination: stderr, stdout or a file")

	root.AddCommand(a.generateCommand(), a.modelsCommand(), a.configCommand(), a.versionCommand())
	return root
}

// session is what a command needs to reach the service.
type session struct {
	cfg    *config.Config
	log    *zap.Logger
	client *gemini.Client
}

func (a *app) open(cmd *cobra.Command) (*session, error) {
	cfg, err := a.opts.LoadConfig()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if v, _ := flags.GetString("base-url"); v != "" {
		cfg.BaseURL = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := flags.GetString("log-output"); v != "" {
		cfg.Log.Output = v
	}
	if flags.Lookup("model") != nil {
		if v, _ := flags.GetString("model"); v != "" {
			cfg.Model = v
		}
	}
	if flags.Changed("max-rounds") {
		cfg.MaxRounds, _ = flags.GetInt("max-rounds")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	})
	if err != nil {
		return nil, apperrors.NewInternalErrorWithCause("logger init", err)
	}

	client := gemini.NewClient(cfg.APIKey,
		gemini.WithBaseURL(cfg.BaseURL),
		gemini.WithLogger(log),
	)
	return &session{cfg: cfg, log: log, client: client}, nil
}

// withTimeout bounds a whole command by cfg.Timeout.
func (s *session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (a *app) renderer(cfg *config.Config, raw bool) *Renderer {
	return NewRenderer(cfg.Render.Width, cfg.Render.Markdown && !raw)
}

// ─── generate ───

func (a *app) generateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [prompt...]",
		Short: "Generate content, running built-in functions the model asks for",
		Long: `Sends a prompt (and/or a request file) to the model.

Unless --no-functions is given, the built-in functions get_current_time and
add_numbers are declared and executed locally whenever the model calls them.
With --stream the reply is printed as it arrives and functions are not run.`,
		Args: cobra.ArbitraryArgs,
		RunE: a.runGenerate,
	}
	f := cmd.Flags()
	f.StringP("model", "m", "", "model id (overrides config)")
	f.StringP("system", "s", "", "system instruction")
	f.StringP("request", "r", "", "request file (.json, .yaml, or - for stdin)")
	f.Bool("stream", false, "stream the reply")
	f.Bool("raw", false, "print the raw JSON response")
	f.Bool("no-functions", false, "do not declare or run built-in functions")
	f.Int("max-rounds", 0, "cap on function-calling rounds, 0 = unlimited")
	return cmd
}

func (a *app) runGenerate(cmd *cobra.Command, args []string) error {
	s, err := a.open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.log.Sync() }()

	flags := cmd.Flags()
	system, _ := flags.GetString("system")
	requestPath, _ := flags.GetString("request")
	stream, _ := flags.GetBool("stream")
	raw, _ := flags.GetBool("raw")
	noFunctions, _ := flags.GetBool("no-functions")

	var base *gemini.GenerateContentRequest
	if requestPath != "" {
		if base, err = LoadRequest(requestPath, cmd.InOrStdin()); err != nil {
			return err
		}
	}
	req, err := BuildRequest(base, strings.Join(args, " "), system)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(cmd.Context())
	defer cancel()

	r := a.renderer(s.cfg, raw)
	out := cmd.OutOrStdout()

	if stream {
		return a.streamGenerate(ctx, s, req, r, out, cmd.ErrOrStderr(), raw)
	}

	var resp *gemini.GenerateContentResponse
	if noFunctions {
		resp, err = s.client.GenerateContent(ctx, s.cfg.Model, req)
	} else {
		reg := DemoRegistry(a.opts.Now)
		if !hasFunctionTool(req.Tools) {
			req.Tools = append(req.Tools, reg.Tool())
		}
		orch := gemini.NewOrchestrator(s.client, reg,
			gemini.WithMaxRounds(s.cfg.MaxRounds),
			gemini.WithHooks(NewPrintHook(cmd.ErrOrStderr(), r)),
			gemini.WithOrchestratorLogger(s.log),
		)
		resp, err = orch.Run(ctx, s.cfg.Model, req)
	}
	if err != nil {
		return classify(err)
	}

	if raw {
		return writeJSON(out, resp)
	}
	_, err = fmt.Fprint(out, r.RenderResponse(resp))
	return err
}

func (a *app) streamGenerate(ctx context.Context, s *session, req *gemini.GenerateContentRequest, r *Renderer, out, errOut io.Writer, raw bool) error {
	var last *gemini.GenerateContentResponse
	for chunk, err := range s.client.StreamGenerateContent(ctx, s.cfg.Model, req) {
		if err != nil {
			if gemini.IsDecode(err) {
				fmt.Fprintln(errOut, RenderError(err))
				continue
			}
			return classify(err)
		}
		if raw {
			line, err := json.Marshal(chunk)
			if err != nil {
				return apperrors.NewInternalErrorWithCause("encode chunk", err)
			}
			fmt.Fprintln(out, string(line))
			continue
		}
		fmt.Fprint(out, chunk.Text())
		last = chunk
	}
	if !raw {
		fmt.Fprintln(out)
		if last != nil {
			if footer := r.RenderUsage(last); footer != "" {
				fmt.Fprintln(out, footer)
			}
		}
	}
	return nil
}

func hasFunctionTool(tools gemini.Tools) bool {
	for _, t := range tools {
		if _, ok := t.(gemini.FunctionDeclarationsTool); ok {
			return true
		}
	}
	return false
}

// ─── models ───

func (a *app) modelsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models [model...]",
		Short: "List the model catalog, or show the given models",
		Args:  cobra.ArbitraryArgs,
		RunE:  a.runModels,
	}
	cmd.Flags().Bool("json", false, "print JSON")
	return cmd
}

func (a *app) runModels(cmd *cobra.Command, args []string) error {
	s, err := a.open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.log.Sync() }()

	ctx, cancel := s.withTimeout(cmd.Context())
	defer cancel()

	var models []gemini.Model
	if len(args) == 0 {
		if models, err = s.client.ListModels(ctx); err != nil {
			return classify(err)
		}
	} else {
		models = make([]gemini.Model, len(args))
		g, gctx := errgroup.WithContext(ctx)
		for i, name := range args {
			g.Go(func() error {
				m, err := s.client.GetModel(gctx, name)
				if err != nil {
					return err
				}
				models[i] = *m
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return classify(err)
		}
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return writeJSON(cmd.OutOrStdout(), models)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), a.renderer(s.cfg, false).RenderModels(models))
	return err
}

// ─── config ───

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml unless one exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			path, created, err := config.Bootstrap(dir, zap.NewNop())
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
			}
			return nil
		},
	}
	initCmd.Flags().String("dir", config.HomeDir(), "directory to write config.yaml into")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with the API key redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.opts.LoadConfig()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg.Redacted()); err != nil {
				return apperrors.NewInternalErrorWithCause("encode config", err)
			}
			return enc.Close()
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

// ─── version ───

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", cliName, Version)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return apperrors.NewInternalErrorWithCause("encode output", err)
	}
	return nil
}

// classify maps library errors onto application error codes so that the
// process exit status reflects the kind of failure.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.CodeServiceUnavail, "request aborted", err)
	}
	e, ok := gemini.AsError(err)
	if !ok {
		return err
	}
	switch e.Kind {
	case gemini.KindAPI:
		switch e.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.Wrap(apperrors.CodeUnauthorized, "request rejected", err)
		case http.StatusNotFound:
			return apperrors.Wrap(apperrors.CodeNotFound, "not found", err)
		}
		return apperrors.Wrap(apperrors.CodeUpstream, "request failed", err)
	case gemini.KindTransport:
		return apperrors.Wrap(apperrors.CodeServiceUnavail, "service unreachable", err)
	case gemini.KindFunctionExecution:
		return apperrors.Wrap(apperrors.CodeInternal, "function call failed", err)
	}
	return apperrors.Wrap(apperrors.CodeUpstream, "unexpected response", err)
}

// Main runs the CLI and returns the process exit status.
func Main(ctx context.Context, args []string) int {
	root := NewRootCommand(Options{})
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, RenderError(err))
		return apperrors.ExitCode(err)
	}
	return 0
}
