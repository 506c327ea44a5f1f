package main

import (
	"bytes"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telegraph-dev/telegraph/internal/errors"
	"github.com/telegraph-dev/telegraph/pkg/protocol"
	"github.com/telegraph-dev/telegraph/pkg/wire"
)

func decodeCmd() *cobra.Command {
	var isHex bool

	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode an encoded packet",
		Long: `Decode one encoded packet and print its fields.

The packet is read from file, or from stdin when file is "-" or omitted.
With --hex the input is hex text, whitespace ignored.

Examples:
  telegraph decode capture.bin
  echo 08011007 | telegraph decode --hex`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), 2*protocol.HardMaxPacketSize+1))
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return errors.New("T123").Wrap(err)
			}
			return runDecode(cmd.OutOrStdout(), data, isHex)
		},
	}

	cmd.Flags().BoolVarP(&isHex, "hex", "x", false, "Input is hex encoded")

	return cmd
}

func runDecode(w io.Writer, data []byte, isHex bool) error {
	if isHex {
		raw, err := hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
		if err != nil {
			return errors.New("T120").
				WithDetail("--hex input is not valid hex.").
				Wrap(err)
		}
		data = raw
	}

	p, err := protocol.DecodePacket(data)
	if err != nil {
		if stderrors.Is(err, protocol.ErrPacketTooLarge) {
			return errors.New("T161").Wrap(err)
		}
		return errors.New("T160").Wrap(err)
	}

	fmt.Fprint(w, formatPacket(p, len(data)))
	return nil
}

// formatPacket renders the set fields of p, one per line.
func formatPacket(p *wire.Packet, size int) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "  size:         %d bytes\n", size)
	fmt.Fprintf(&b, "  req_id:       %d\n", p.ReqID)
	fmt.Fprintf(&b, "  type:         %s\n", p.Type)
	if p.Target != "" {
		fmt.Fprintf(&b, "  target:       %q\n", p.Target)
	}
	if len(p.Path) > 0 {
		fmt.Fprintf(&b, "  path:         %s\n", strings.Join(p.Path, "."))
	}
	if p.Value != nil {
		fmt.Fprintf(&b, "  value:        %s (%s)\n", p.Value, p.Value.Type)
	}
	if p.Error != "" {
		fmt.Fprintf(&b, "  error:        %q\n", p.Error)
	}
	if p.MinInterval != 0 || p.MaxInterval != 0 {
		fmt.Fprintf(&b, "  interval:     %d-%d ms\n", p.MinInterval, p.MaxInterval)
	}
	return b.String()
}
