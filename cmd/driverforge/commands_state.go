package main

import (
	"fmt"
	"path"
	"strconv"

	"github.com/spf13/cobra"

	"driverforge/internal/driver"
	"driverforge/internal/remotefs"
)

// checkpointsCmd lists a driver's checkpoint history.
var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints [name]",
	Short: "List the checkpoint history of a driver",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpoints,
}

// rollbackCmd restores a driver to a checkpoint.
var rollbackCmd = &cobra.Command{
	Use:   "rollback [name] [checkpoint-index]",
	Short: "Roll a driver back to a checkpoint",
	Args:  cobra.ExactArgs(2),
	RunE:  runRollback,
}

// deleteCmd destroys a driver and its history.
var deleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a driver and all its checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var saveDir string

// saveCmd publishes the driver's artifacts to the remote filesystem.
var saveCmd = &cobra.Command{
	Use:   "save [name]",
	Short: "Write a driver's artifacts to the remote filesystem",
	Long: `Writes the four generated artifacts to a directory on the remote
filesystem API, creating the directory when missing. Requires
DRIVERFORGE_REMOTE_FS_URL and DRIVERFORGE_REMOTE_FS_TOKEN (or the
remote_fs config section).`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

// statsCmd shows what the store currently holds.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show stored drivers and their state",
	RunE:  runStats,
}

func init() {
	saveCmd.Flags().StringVarP(&saveDir, "dir", "d", "", "remote directory (defaults to the driver name)")
}

func runCheckpoints(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	cps, err := a.manager.GetDriverCheckpoints(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		fmt.Printf("Driver %q has no checkpoints\n", args[0])
		return nil
	}

	for _, cp := range cps {
		marker := " "
		if cp.Validity.IsValid {
			marker = "✓"
		}
		fmt.Printf("%3d %s %s  %s\n", cp.Index, marker, cp.Timestamp.Format("2006-01-02 15:04:05"), cp.Message)
	}
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("checkpoint index must be a number: %w", err)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	set, err := a.manager.RollbackDriver(cmd.Context(), args[0], index)
	if err != nil {
		return err
	}

	fmt.Printf("Rolled %q back to checkpoint %d\n", set.Name, index)
	printSetSummary(set)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.manager.DeleteDriver(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted driver %q\n", args[0])
	return nil
}

func runSave(cmd *cobra.Command, args []string) error {
	rfs, err := remotefs.NewClient(cfg.RemoteFS.BaseURL, cfg.RemoteFS.Token)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	set, err := a.manager.GetDriver(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	dir := saveDir
	if dir == "" {
		dir = set.Name
	}

	ctx := cmd.Context()
	exists, err := rfs.DirExists(ctx, dir)
	if err != nil {
		return err
	}
	if !exists {
		if err := rfs.MkdirAll(ctx, dir); err != nil {
			return err
		}
	}

	for _, p := range driver.Parts() {
		if err := rfs.WriteFile(ctx, path.Join(dir, p.String()), set.Files.Get(p)); err != nil {
			return err
		}
	}

	fmt.Printf("Saved driver %q to %s\n", set.Name, dir)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	names, err := a.store.ListArtifactSets(cmd.Context())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No drivers stored")
		return nil
	}

	fmt.Printf("%d driver(s):\n", len(names))
	for _, name := range names {
		set, err := a.manager.GetDriver(cmd.Context(), name)
		if err != nil {
			fmt.Printf("  %-24s (unreadable: %v)\n", name, err)
			continue
		}
		fmt.Printf("  %-24s state=%-10s valid=%-5t checkpoints=%d\n",
			set.Name, set.State, set.Validity.IsValid, len(set.Checkpoints))
	}
	return nil
}
