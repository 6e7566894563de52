package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var debug bool

func main() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// NewRootCmd constructs the root CLI command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meditime",
		Short:         "Medication reminders delivered over pushover",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.Logger = log.Output(zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: "2006-01-02 15:04:05",
				NoColor:    true,
			})

			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
				log.Debug().Msg("debug logging enabled")
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newRescheduleCmd())
	rootCmd.AddCommand(newUserCmd())
	rootCmd.AddCommand(newMedicationCmd())
	rootCmd.AddCommand(newTodayCmd())
	rootCmd.AddCommand(newHistoryCmd())

	for _, action := range intakeActions {
		rootCmd.AddCommand(newIntakeActionCmd(action))
	}

	return rootCmd
}

// prompter asks for one line of input at a time
type prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{
		scanner: bufio.NewScanner(cmd.InOrStdin()),
		out:     cmd.OutOrStdout(),
	}
}

// ask returns the trimmed answer, empty when input ends
func (p *prompter) ask(label string) string {
	fmt.Fprintf(p.out, "%s: ", label)
	if !p.scanner.Scan() {
		return ""
	}

	return string(bytes.TrimSpace(p.scanner.Bytes()))
}

// require returns the answer or an error naming what was missing
func (p *prompter) require(label string) (string, error) {
	answer := p.ask(label)
	if answer == "" {
		return "", fmt.Errorf("failed to get %s from STDIN prompt: %v", label, p.scanner.Err())
	}

	return answer, nil
}
