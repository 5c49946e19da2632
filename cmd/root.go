package cmd

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"syscall"

	"github.com/josephlewis42/jsh/core/config"
	"github.com/josephlewis42/jsh/core/job"
	"github.com/josephlewis42/jsh/core/logger"
	"github.com/josephlewis42/jsh/core/redirect"
	"github.com/josephlewis42/jsh/core/shell"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	cfgPath  string
	command  string
	exitCode int
)

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jsh",
	Short: "A job controlling command shell",
	Long: `jsh runs pipelines of external commands as foreground or background
jobs. Without -c it reads commands from stdin.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		l := log.New(cmd.ErrOrStderr(), "", 0)

		configuration, err := config.LoadOrDefault(cfgPath)
		if err != nil {
			return err
		}
		for k, v := range configuration.Environ() {
			if err := os.Setenv(k, v); err != nil {
				return err
			}
		}

		events := openEvents(configuration, l)

		var reader shell.LineReader
		interactive := command == "" && term.IsTerminal(int(os.Stdin.Fd()))
		switch {
		case command != "":
		case interactive:
			rl, err := shell.NewReadlineReader(os.Stdin, os.Stdout, os.Stderr, configuration.HistoryPath())
			if err != nil {
				return err
			}
			defer rl.Close()
			reader = rl
		default:
			reader = shell.NewScannerReader(os.Stdin)
		}

		session := shell.NewSession(configuration, reader, redirect.StdStreams(), events)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go job.Forward(ctx, session.Foreground, os.Interrupt, syscall.SIGQUIT, syscall.SIGTSTP)

		if command != "" {
			events.Record(logger.EventSessionStart, map[string]interface{}{"interactive": false})
			exitCode, _ = session.RunString(command)
			return nil
		}

		exitCode = session.Run()
		return nil
	},
}

// openEvents opens the event log, events are dropped if it can't be opened.
func openEvents(configuration *config.Configuration, l *log.Logger) *logger.SessionLogger {
	fd, err := configuration.OpenAppLog()
	if err != nil {
		l.Printf("event log disabled: %v", err)
		return logger.Discard().NewSession()
	}
	return logger.NewJSONLinesLogRecorder(fd).NewSession()
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
	os.Exit(exitCode)
}

func init() {
	defaultConfig := ".jsh"
	if home, err := os.UserHomeDir(); err == nil {
		defaultConfig = filepath.Join(home, ".jsh")
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfig, "config path")
	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run the command and exit")
}
