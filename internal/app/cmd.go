package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/moovies/internal/config"
)

// Command はアプリケーションのサブコマンド名を表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。引数なしの場合もこれ。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandAddUser はパスワードログイン用のユーザーを作成する。
	CommandAddUser Command = "adduser"

	CommandSearch    Command = "search"
	CommandRecommend Command = "recommend"
	CommandWatchlist Command = "watchlist"
	CommandHero      Command = "hero"
	CommandLogin     Command = "login"
	CommandGuest     Command = "guest"
	CommandLogout    Command = "logout"
	CommandWhoami    Command = "whoami"
)

// passwordEnv はパスワードをフラグで渡さない場合に参照する環境変数。
const passwordEnv = "MOOVIES_PASSWORD"

// NewRootCommand はmooviesコマンドのツリーを生成する。
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "moovies",
		Short: "Movie discovery server and command-line client",
		Long: `moovies serves the movie lookup, recommendation and login API together with
the page shells, and doubles as a command-line client for the same API.

Running moovies without a subcommand starts the API server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serverRunE(stdout, runServe),
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "Start the API server",
			Args:  cobra.NoArgs,
			RunE:  serverRunE(stdout, runServe),
		},
		&cobra.Command{
			Use:   string(CommandWorker),
			Short: "Run the expired session cleanup worker",
			Args:  cobra.NoArgs,
			RunE:  serverRunE(stdout, runWorker),
		},
		&cobra.Command{
			Use:   string(CommandMigrate),
			Short: "Apply database migrations",
			Args:  cobra.NoArgs,
			RunE:  serverRunE(stdout, runMigrate),
		},
		&cobra.Command{
			Use:   string(CommandHealthcheck),
			Short: "Probe the local /health endpoint",
			Args:  cobra.NoArgs,
			// 軽量サブコマンドのため、フル初期化をスキップする
			RunE: func(cmd *cobra.Command, args []string) error {
				return runHealthcheck(healthcheckPort())
			},
		},
		newAddUserCommand(stdout),
		newSearchCommand(stdout, stderr),
		newRecommendCommand(stdout, stderr),
		newWatchlistCommand(stdout, stderr),
		newHeroCommand(stdout, stderr),
		newLoginCommand(stdout, stderr),
		&cobra.Command{
			Use:   string(CommandGuest),
			Short: "Continue as a guest",
			Args:  cobra.NoArgs,
			RunE: clientRunE(stdout, stderr, func(ctx context.Context, env *clientEnv, args []string) error {
				return runGuest(ctx, env)
			}),
		},
		&cobra.Command{
			Use:   string(CommandLogout),
			Short: "Sign out and clear the stored session",
			Args:  cobra.NoArgs,
			RunE: clientRunE(stdout, stderr, func(ctx context.Context, env *clientEnv, args []string) error {
				return runLogout(ctx, env)
			}),
		},
		&cobra.Command{
			Use:   string(CommandWhoami),
			Short: "Show the current sign-in state",
			Args:  cobra.NoArgs,
			RunE: clientRunE(stdout, stderr, func(ctx context.Context, env *clientEnv, args []string) error {
				return runWhoami(ctx, env)
			}),
		},
	)

	return root
}

// serverRunE は設定を読み込んでからサーバー系の処理を実行するRunEを返す。
func serverRunE(stdout io.Writer, fn func(cfg *config.Config) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := Init(stdout)
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}

		slog.Info("starting application",
			slog.String("command", cmd.Name()),
			slog.String("port", cfg.ServerPort),
			slog.String("base_url", cfg.BaseURL),
		)
		return fn(cfg)
	}
}

// clientRunE はクライアント環境を準備してから処理を実行するRunEを返す。
// SIGINTとSIGTERMでctxがキャンセルされる。
func clientRunE(stdout, stderr io.Writer, fn func(ctx context.Context, env *clientEnv, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := openClient(stdout, stderr)
		if err != nil {
			return err
		}
		defer env.Close()

		// 保存済みのリフレッシュトークンでauthTokenを更新してからAPIを呼ぶ
		if err := env.mirror.Refresh(ctx); err != nil {
			env.logger.Warn("failed to refresh session token", slog.String("error", err.Error()))
		}

		return fn(ctx, env, args)
	}
}

func passwordFrom(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(passwordEnv)
}

func newAddUserCommand(stdout io.Writer) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   string(CommandAddUser) + " <username>",
		Short: "Create a user for password login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := Init(stdout)
			if err != nil {
				return fmt.Errorf("initialization failed: %w", err)
			}
			return runAddUser(cmd.Context(), cfg, stdout, args[0], passwordFrom(password))
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password (defaults to $"+passwordEnv+")")
	return cmd
}

func newSearchCommand(stdout, stderr io.Writer) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   string(CommandSearch) + " <title>",
		Short: "Look up a movie with its cast and reviews",
		Args:  cobra.ArbitraryArgs,
		RunE: clientRunE(stdout, stderr, func(ctx context.Context, env *clientEnv, args []string) error {
			return runSearch(ctx, env, strings.Join(args, " "), save)
		}),
	}
	cmd.Flags().BoolVar(&save, "save", false, "toggle the movie in the watchlist")
	return cmd
}

func newRecommendCommand(stdout, stderr io.Writer) *cobra.Command {
	var pick int
	cmd := &cobra.Command{
		Use:   string(CommandRecommend) + " <description>",
		Short: "Get movie recommendations from a description",
		Args:  cobra.ArbitraryArgs,
		RunE: clientRunE(stdout, stderr, func(ctx context.Context, env *clientEnv, args []string) error {
			return runRecommend(ctx, env, strings.Join(args, " "), pick)
		}),
	}
	cmd.Flags().IntVar(&pick, "pick", 0, "look up the n-th recommendation")
	return cmd
}

func newWatchlistCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(CommandWatchlist),
		Short: "Show the saved watchlist",
		Args:  cobra.NoArgs,
		RunE: clientRunE(stdout, stderr, func(ctx context.Context, env *clientEnv, args []string) error {
			return runWatchlist(env, 0)
		}),
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <movie-id>",
		Short: "Remove a movie from the watchlist",
		Args:  cobra.ExactArgs(1),
		RunE: clientRunE(stdout, stderr, func(ctx context.Context, env *clientEnv, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid movie id: %q", args[0])
			}
			return runWatchlist(env, id)
		}),
	})
	return cmd
}

func newHeroCommand(stdout, stderr io.Writer) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   string(CommandHero),
		Short: "Print rotating hero backdrops",
		Args:  cobra.NoArgs,
		RunE: clientRunE(stdout, stderr, func(ctx context.Context, env *clientEnv, args []string) error {
			return runHero(ctx, env, duration)
		}),
	}
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "how long to keep rotating (0 runs until interrupted)")
	return cmd
}

func newLoginCommand(stdout, stderr io.Writer) *cobra.Command {
	var email, username, password string
	var google bool
	cmd := &cobra.Command{
		Use:   string(CommandLogin),
		Short: "Sign in with Firebase (--email, --google) or a local account (--username)",
		Args:  cobra.NoArgs,
		RunE: clientRunE(stdout, stderr, func(ctx context.Context, env *clientEnv, args []string) error {
			return runLogin(ctx, env, email, username, passwordFrom(password), google)
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "Firebase account email")
	cmd.Flags().StringVar(&username, "username", "", "local account username")
	cmd.Flags().StringVar(&password, "password", "", "password (defaults to $"+passwordEnv+")")
	cmd.Flags().BoolVar(&google, "google", false, "sign in with a Google account")
	cmd.MarkFlagsMutuallyExclusive("email", "username", "google")
	return cmd
}
