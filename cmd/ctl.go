// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"grimm.is/stonewall/internal/config"
	"grimm.is/stonewall/internal/ctlplane"
)

// sendCommand writes one command byte to the control socket and returns
// everything the daemon sends back.
func sendCommand(cmd byte) (string, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return "", err
	}
	conn, err := net.Dial("unixpacket", cfg.ControlSocket)
	if err != nil {
		return "", fmt.Errorf("cannot reach daemon at %s: %w", cfg.ControlSocket, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{cmd}); err != nil {
		return "", err
	}

	var b strings.Builder
	buf := make([]byte, 64<<10)

	if cmd != ctlplane.CmdSnapshot {
		// Plain command replies are a single status message.
		n, err := conn.Read(buf)
		if n > 0 {
			b.Write(buf[:n])
		}
		if err != nil && err != io.EOF {
			return b.String(), err
		}
		return b.String(), nil
	}

	// Snapshot: drain the export until the daemon goes quiet.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, err := conn.Read(buf)
		if n > 0 {
			b.Write(buf[:n])
		}
		if err != nil {
			var ne net.Error
			if err == io.EOF || (stderrors.As(err, &ne) && ne.Timeout()) {
				break
			}
			return b.String(), err
		}
	}
	return b.String(), nil
}

func runByteCommand(cmd byte) error {
	out, err := sendCommand(cmd)
	if err != nil {
		return err
	}
	out = strings.TrimSpace(out)
	if strings.HasPrefix(out, "ERR") {
		return fmt.Errorf("%s", out)
	}
	if out != "" && out != "OK" {
		fmt.Println(out)
	}
	return nil
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Install the packet hooks",
	RunE:  func(*cobra.Command, []string) error { return runByteCommand(ctlplane.CmdEnable) },
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Uninstall the packet hooks",
	RunE:  func(*cobra.Command, []string) error { return runByteCommand(ctlplane.CmdDisable) },
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload filter and NAT rules from their files",
	RunE:  func(*cobra.Command, []string) error { return runByteCommand(ctlplane.CmdReload) },
}

var toggleDefaultCmd = &cobra.Command{
	Use:   "toggle-default",
	Short: "Flip the default action between accept and drop",
	RunE:  func(*cobra.Command, []string) error { return runByteCommand(ctlplane.CmdToggleDefault) },
}

var connsCmd = &cobra.Command{
	Use:   "conns",
	Short: "Print the live connection table",
	RunE: func(*cobra.Command, []string) error {
		out, err := sendCommand(ctlplane.CmdSnapshot)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the in-memory log ring",
	RunE: func(*cobra.Command, []string) error {
		cfg, err := config.Load(configPath())
		if err != nil {
			return err
		}
		resp, err := http.Get("http://" + cfg.ListenHTTP + "/logs")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, err = io.Copy(os.Stdout, resp.Body)
		return err
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon is reachable",
	RunE: func(*cobra.Command, []string) error {
		cfg, err := config.Load(configPath())
		if err != nil {
			return err
		}
		conn, err := net.Dial("unixpacket", cfg.ControlSocket)
		if err != nil {
			fmt.Println("daemon: not running")
			return nil
		}
		conn.Close()
		fmt.Println("daemon: running")
		fmt.Println("control socket:", cfg.ControlSocket)
		fmt.Println("observability:", "http://"+cfg.ListenHTTP)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enableCmd, disableCmd, reloadCmd, toggleDefaultCmd, connsCmd, logsCmd, statusCmd)
}
