// Command rtpmidi runs an RTP-MIDI session from the terminal: listen for
// peers, invite them, and send test notes.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	debug      bool
	configPath string

	rootCmd = &cobra.Command{
		Use:   "rtpmidi",
		Short: "RTP-MIDI session tool",
		Long:  "Run an RTP-MIDI (AppleMIDI) session: listen for peers, invite them, send MIDI.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Errorf("failed to execute command: %v", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file location")
}
