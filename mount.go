package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/hanwen/go-fuse/fuse"
	"github.com/hanwen/go-fuse/fuse/nodefs"
	"github.com/hanwen/go-fuse/fuse/pathfs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/e2fuse/e2fuse/ext2"
	"github.com/e2fuse/e2fuse/fusefs"
)

func newMountCommand() *cobra.Command {
	mountCmd := &cobra.Command{
		Use:   "mount [flags] MOUNTPOINT IMAGE",
		Short: "Mount an image read-only through FUSE",
		Args:  cobra.ExactArgs(2),
		RunE:  mountAction,
	}
	mountCmd.Flags().Bool("fuse-debug", false, "log the FUSE protocol traffic")
	mountCmd.Flags().Bool("allow-other", false, "allow access by other users")
	mountCmd.Flags().StringArrayP("option", "o", nil, "additional FUSE mount options")
	return mountCmd
}

func mountAction(c *cobra.Command, args []string) error {
	mountpoint, image := args[0], args[1]

	// Hold a shared lock on the image for the lifetime of the mount.
	// Other readers can coexist; a writer holding an exclusive lock
	// means the volume may be mid-update and must not be interpreted.
	lock := flock.New(image)
	locked, err := lock.TryRLock()
	if err != nil {
		return fmt.Errorf("locking %s: %w", image, err)
	}
	if !locked {
		return fmt.Errorf("%s: image is locked for writing", image)
	}
	defer lock.Unlock()

	vol, err := ext2.Open(image)
	if err != nil {
		return fmt.Errorf("%s: %w", image, err)
	}
	defer vol.Close()

	logrus.Infof("%s: %s volume, %d blocks of %d bytes",
		image, vol.Type(), vol.BlocksCount(), vol.BlockSize())

	fuseDebug, _ := c.Flags().GetBool("fuse-debug")
	allowOther, _ := c.Flags().GetBool("allow-other")
	extraOpts, _ := c.Flags().GetStringArray("option")

	nfs := pathfs.NewPathNodeFs(fusefs.New(vol), nil)
	conn := nodefs.NewFileSystemConnector(nfs.Root(), nodefs.NewOptions())

	mountOpts := &fuse.MountOptions{
		AllowOther: allowOther,
		Options:    append([]string{"ro"}, extraOpts...),
		FsName:     image,
		Name:       "e2fuse",
		Debug:      fuseDebug,
	}
	server, err := fuse.NewServer(conn.RawFS(), mountpoint, mountOpts)
	if err != nil {
		return fmt.Errorf("mounting on %s: %w", mountpoint, err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		logrus.Infof("received %s, unmounting", s)
		if err := server.Unmount(); err != nil {
			logrus.Errorf("unmount: %v (is the mountpoint busy?)", err)
		}
	}()

	logrus.Infof("serving on %s", mountpoint)
	server.Serve()
	return nil
}
