// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the firewall daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := readPIDFile()
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("daemon not running (no PID file)")
			}
			return err
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("cannot signal PID %d: %w", pid, err)
		}
		fmt.Printf("sent SIGTERM to PID %d\n", pid)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
