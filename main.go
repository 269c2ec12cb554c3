package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/zsprackett/editor-companion/internal/applog"
	"github.com/zsprackett/editor-companion/internal/config"
	"github.com/zsprackett/editor-companion/internal/db"
)

const usage = `usage: editor-companion [command]

commands:
  serve              run the web server, live log and MCP endpoint (default)
  mcp <project>      serve MCP over stdio for one project
  projects           list projects
  adduser <name>     create a login account
  passwd <name>      change a password and revoke its sessions
  setenv KEY VALUE   store a setting in the env file
  unsetenv KEY       remove a setting from the env file
`

func openDB() (*db.DB, error) {
	dbPath := config.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, err
	}
	store, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// loadConfig reads the config file, exports the env file it names and reads
// again so EC_* values stored there take effect.
func loadConfig() (config.Config, *config.EnvFile) {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load config: %v\n", err)
		cfg = config.Defaults()
	}
	envFile := config.NewEnvFile(cfg.EnvFile)
	if err := envFile.Apply(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", envFile.Path(), err)
		return cfg, envFile
	}
	if reloaded, err := config.Load(config.DefaultPath()); err == nil {
		cfg = reloaded
	}
	return cfg, envFile
}

func initLogger(cfg config.Config, stderr bool) (*slog.Logger, func()) {
	logger, closer, err := applog.Init(applog.InitConfig{
		LogDir:        cfg.LogDir,
		LogLevel:      cfg.LogLevel,
		RetentionDays: cfg.LogRetentionDays,
		Format:        cfg.LogFormat,
		Stderr:        stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not init log file: %v\n", err)
		return slog.New(slog.NewTextHandler(os.Stderr, nil)), func() {}
	}
	return logger, func() { closer.Close() }
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func readPassword(prompt string) []byte {
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fatal("%v", err)
	}
	if len(pw) == 0 {
		fatal("empty password")
	}
	return pw
}

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch {
	case cmd == "serve":
		if err := serve(); err != nil {
			fatal("%v", err)
		}

	case cmd == "mcp" && len(args) == 1:
		if err := serveStdio(args[0]); err != nil {
			fatal("%v", err)
		}

	case cmd == "projects":
		if err := listProjects(os.Stdout); err != nil {
			fatal("%v", err)
		}

	case cmd == "adduser" && len(args) == 1:
		username := args[0]
		pw := readPassword(fmt.Sprintf("Password for %s: ", username))
		hash, err := bcrypt.GenerateFromPassword(pw, bcrypt.DefaultCost)
		if err != nil {
			fatal("%v", err)
		}
		store, err := openDB()
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()
		if _, err := store.CreateAccount(username, string(hash)); err != nil {
			fatal("creating account: %v", err)
		}
		fmt.Printf("Account created: %s\n", username)

	case cmd == "passwd" && len(args) == 1:
		username := args[0]
		store, err := openDB()
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()
		acc, err := store.GetAccountByUsername(username)
		if err != nil {
			fatal("user not found: %v", err)
		}
		pw := readPassword(fmt.Sprintf("New password for %s: ", username))
		hash, err := bcrypt.GenerateFromPassword(pw, bcrypt.DefaultCost)
		if err != nil {
			fatal("%v", err)
		}
		if err := store.UpdateAccountPassword(acc.ID, string(hash)); err != nil {
			fatal("%v", err)
		}
		if err := store.DeleteRefreshTokensByAccount(acc.ID); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Password updated: %s (all sessions invalidated)\n", username)

	case cmd == "setenv" && len(args) == 2:
		_, envFile := loadConfig()
		if err := envFile.Set(args[0], args[1]); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s=%s written to %s (restart to apply)\n", args[0], config.Mask(args[1]), envFile.Path())

	case cmd == "unsetenv" && len(args) == 1:
		_, envFile := loadConfig()
		if err := envFile.Delete(args[0]); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s removed from %s\n", args[0], envFile.Path())

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}
