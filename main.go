// e2fuse - mount and inspect ext2/ext3 filesystem images, read-only.
//
// Usage:
//
//	e2fuse mount [flags] MOUNTPOINT IMAGE
//	e2fuse ls [-l] IMAGE [PATH]
//	e2fuse cat IMAGE PATH
//	e2fuse stat IMAGE PATH
//	e2fuse info IMAGE
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/e2fuse/e2fuse/cmd"
	"github.com/e2fuse/e2fuse/ext2"
)

func main() {
	if err := newApp().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newApp() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "e2fuse",
		Short:         "Read-only access to ext2/ext3 filesystem images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("log-level", "", "Set the logging level [trace, debug, info, warn, error]")
	rootCmd.PersistentFlags().Bool("debug", false, "Debug mode")
	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		return processGlobalFlags(rootCmd)
	}

	rootCmd.AddCommand(
		newMountCommand(),
		newLsCommand(),
		newCatCommand(),
		newStatCommand(),
		newInfoCommand(),
	)
	return rootCmd
}

// processGlobalFlags applies the logging flags. --log-level overrides
// --debug.
func processGlobalFlags(rootCmd *cobra.Command) error {
	if debug, _ := rootCmd.Flags().GetBool("debug"); debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if l, _ := rootCmd.Flags().GetString("log-level"); l != "" {
		lvl, err := logrus.ParseLevel(l)
		if err != nil {
			return err
		}
		logrus.SetLevel(lvl)
	}
	return nil
}

// openVolume opens and validates an image for the inspection commands.
func openVolume(path string) (*ext2.Volume, error) {
	vol, err := ext2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vol, nil
}

func newLsCommand() *cobra.Command {
	lsCmd := &cobra.Command{
		Use:   "ls [flags] IMAGE [PATH]",
		Short: "List a directory in an image",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  lsAction,
	}
	lsCmd.Flags().BoolP("long", "l", false, "use long listing format")
	lsCmd.Flags().BoolP("human", "H", false, "print sizes in human readable form")
	return lsCmd
}

func lsAction(c *cobra.Command, args []string) error {
	vol, err := openVolume(args[0])
	if err != nil {
		return err
	}
	defer vol.Close()

	path := "."
	if len(args) > 1 {
		path = args[1]
	}

	long, _ := c.Flags().GetBool("long")
	human, _ := c.Flags().GetBool("human")
	return cmd.Ls(vol, path, os.Stdout, cmd.LsOptions{Long: long, Human: human})
}

func newCatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cat IMAGE PATH",
		Short: "Copy a file from an image to stdout",
		Args:  cobra.ExactArgs(2),
		RunE:  catAction,
	}
}

func catAction(_ *cobra.Command, args []string) error {
	vol, err := openVolume(args[0])
	if err != nil {
		return err
	}
	defer vol.Close()
	return cmd.Cat(vol, args[1], os.Stdout)
}

func newStatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stat IMAGE PATH",
		Short: "Show file metadata from an image",
		Args:  cobra.ExactArgs(2),
		RunE:  statAction,
	}
}

func statAction(_ *cobra.Command, args []string) error {
	vol, err := openVolume(args[0])
	if err != nil {
		return err
	}
	defer vol.Close()
	return cmd.Stat(vol, args[1], os.Stdout)
}

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info IMAGE",
		Short: "Show the image's superblock summary",
		Args:  cobra.ExactArgs(1),
		RunE:  infoAction,
	}
}

func infoAction(_ *cobra.Command, args []string) error {
	vol, err := openVolume(args[0])
	if err != nil {
		return err
	}
	defer vol.Close()
	return cmd.Info(vol, os.Stdout)
}
