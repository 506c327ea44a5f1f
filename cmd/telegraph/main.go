package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/telegraph-dev/telegraph/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╦╗┌─┐┬  ┌─┐┌─┐┬─┐┌─┐┌─┐┬ ┬
   ║ ├┤ │  ├┤ │ ┬├┬┘├─┤├─┘├─┤
   ╩ └─┘┴─┘└─┘└─┘┴└─┴ ┴┴  ┴ ┴
`

func main() {
	if cmd, err := newRootCmd().ExecuteC(); err != nil {
		reportError(os.Stderr, cmd, err)
		os.Exit(1)
	}
}

// reportError writes a command failure to w. Commands run with
// --log-format=json get one JSON object so log pipelines can parse it.
func reportError(w io.Writer, cmd *cobra.Command, err error) {
	if cmd != nil {
		if f := cmd.Flags().Lookup("log-format"); f != nil && f.Value.String() == "json" {
			errors.PrintErrorJSON(w, err)
			return
		}
	}
	errors.PrintError(w, err)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "telegraph",
		Short: "WebSocket packet intake server",
		Long: `Telegraph accepts WebSocket connections from devices and clients,
decodes every binary message into a packet and hands it to a handler.

  • Raw TCP intake with an in-process WebSocket handshake
  • Admin HTTP server with /healthz, /metrics and a /ws mount
  • Prometheus metrics and OpenTelemetry spans per packet`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		decodeCmd(),
		versionCmd(),
	)
	return rootCmd
}

// printBanner prints the Telegraph ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
