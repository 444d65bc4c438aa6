// Package cli defines the meet command tree.
package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/sFinOe/Video-Conference-App/internal/ui"
	"github.com/sFinOe/Video-Conference-App/internal/version"
)

// rootCmd represents the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:     "meet",
	Short:   "Terminal client for the video conference signaling server",
	Long:    `Meet joins a named room on the signaling server, establishes media sessions with every other occupant, and provides chat plus mute/camera/screen-share controls from the terminal.`,
	Version: version.Version,
}

// Execute runs the command tree. Called once from main.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorStyle.Render(err.Error()))
		os.Exit(1)
	}
}
