package main

import (
	"os"
	"path/filepath"

	"github.com/aligator/flatfs"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func infoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <image>",
		Short: "Show the superblock and FAT statistics of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			fs, err := a.openImage(args[0], false)
			if err != nil {
				return err
			}
			defer fs.Close()

			return flatfs.WriteInfo(a.out, fs)
		},
	}
}

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <image>",
		Short: "List the root directory of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			fs, err := a.openImage(args[0], false)
			if err != nil {
				return err
			}
			defer fs.Close()

			return flatfs.WriteListing(a.out, fs.Entries())
		},
	}
}

func getCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <image> <name> [dest]",
		Short: "Copy a file out of an image",
		Long:  "Copy the file <name> out of the image into [dest], which defaults to <name> in the current directory.",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[1]
			dest := name
			if len(args) == 3 {
				dest = args[2]
			}

			fs, err := a.openImage(args[0], false)
			if err != nil {
				return err
			}
			defer fs.Close()

			if err := fs.Get(name, a.afs, dest); err != nil {
				return err
			}

			log.Infof("Copied %s to %s", name, dest)
			return nil
		},
	}
}

func putCmd(a *app) *cobra.Command {
	var policy TimePolicy

	cmd := &cobra.Command{
		Use:   "put <image> <local> [name]",
		Short: "Copy a local file into an image",
		Long:  "Copy the local file into the root directory of the image. [name] defaults to the base name of <local>.",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("time") {
				policy = a.config.Time
			}

			name := ""
			if len(args) == 3 {
				name = args[2]
			}

			fs, err := a.openImage(args[0], true, flatfs.WithClock(policy.Clock()))
			if err != nil {
				return err
			}
			defer fs.Close()

			entry, err := fs.Put(a.afs, args[1], name)
			if err != nil {
				return err
			}

			log.Infof("Stored %s with %d bytes in %d blocks", entry.Name, entry.Size, entry.BlockCount)
			return nil
		},
	}

	cmd.Flags().Var(&policy, "time", "Time stored as creation and modification time: now or zero (default from config, else now)")

	return cmd
}

func formatCmd(a *app) *cobra.Command {
	var (
		geometry flatfs.Geometry
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "format <image>",
		Short: "Create a new, empty image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			flags := cmd.Flags()
			if !flags.Changed("block-size") {
				geometry.BlockSize = a.config.Format.BlockSize
			}
			if !flags.Changed("blocks") {
				geometry.TotalBlocks = a.config.Format.TotalBlocks
			}
			if !flags.Changed("fdt-blocks") {
				geometry.FDTBlocks = a.config.Format.FDTBlocks
			}

			// Check the geometry before touching the file.
			if _, err := geometry.Superblock(flatfs.DefaultIdentifier); err != nil {
				return err
			}

			flag := os.O_RDWR | os.O_CREATE | os.O_TRUNC
			if !force {
				flag |= os.O_EXCL
			}

			if dir := filepath.Dir(path); dir != "." {
				if err := a.afs.MkdirAll(dir, 0755); err != nil {
					return err
				}
			}

			file, err := a.afs.OpenFile(path, flag, 0644)
			if err != nil {
				return err
			}

			sb, err := flatfs.Format(file, geometry, flatfs.DefaultIdentifier)
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}

			log.Infof("Formatted %s: %d blocks of %d bytes, %d directory slots", path, sb.TotalBlocks, sb.BlockSize, sb.FDTEntries())
			return nil
		},
	}

	cmd.Flags().Uint16Var(&geometry.BlockSize, "block-size", flatfs.DefaultGeometry.BlockSize, "Size of a block in bytes")
	cmd.Flags().Uint32Var(&geometry.TotalBlocks, "blocks", flatfs.DefaultGeometry.TotalBlocks, "Number of blocks of the image")
	cmd.Flags().Uint32Var(&geometry.FDTBlocks, "fdt-blocks", flatfs.DefaultGeometry.FDTBlocks, "Number of blocks of the root directory")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing image")

	return cmd
}
