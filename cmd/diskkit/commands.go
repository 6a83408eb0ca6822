package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gobeaver/diskkit"
)

func (a *app) disksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disks",
		Short: "Print the disk registry with credentials masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			disks := make(map[string]diskkit.DiskConfig, a.registry.Len())
			for _, name := range a.registry.Names() {
				cfg, _ := a.registry.Lookup(name)
				disks[name] = cfg.Redacted()
			}

			enc := yaml.NewEncoder(a.out)
			enc.SetIndent(2)
			if err := enc.Encode(map[string]any{"disks": disks}); err != nil {
				return fmt.Errorf("failed to encode registry: %w", err)
			}
			return enc.Close()
		},
	}
}

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [dir]",
		Short: "List the entries of a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			for _, name := range a.storage.List(cmd.Context(), dir) {
				fmt.Fprintln(a.out, name)
			}
			return nil
		},
	}
}

func (a *app) findCmd() *cobra.Command {
	var (
		pattern   string
		maxDepth  int
		recursive bool
	)

	cmd := &cobra.Command{
		Use:   "find [dir]",
		Short: "Print the paths of files matching a glob pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}

			selectors := []diskkit.FileSelector{diskkit.Glob(pattern)}
			if maxDepth > 0 {
				selectors = append(selectors, diskkit.Depth(maxDepth, dir))
			}

			for _, f := range a.storage.Find(cmd.Context(), dir, diskkit.And(selectors...), recursive) {
				fmt.Fprintln(a.out, f.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "glob", "**", "Glob pattern matched against the file name and its path")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Maximum depth below dir (0 = unlimited)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", true, "Descend into subdirectories")
	return cmd
}

func (a *app) catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write the content of a file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.storage.Read(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = a.out.Write(data)
			return err
		},
	}
}

func (a *app) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-file> <dest>",
		Short: "Upload a local file to the disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.storage.UploadLocalFile(cmd.Context(), args[0], args[1])
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.storage.Delete(cmd.Context(), args[0])
		},
	}
}

func (a *app) existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <path>",
		Short: "Print whether a file or directory exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.out, a.storage.Exists(cmd.Context(), args[0]))
			return nil
		},
	}
}

func (a *app) mvCmd() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "mv <src> <dst>",
		Short: "Move a file within the disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.storage.Move(cmd.Context(), args[0], args[1], overwrite)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace dst if it exists")
	return cmd
}

func (a *app) statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Print the metadata of a file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.storage.Stat(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			kind := "file"
			if info.IsDir {
				kind = "directory"
			}
			fmt.Fprintf(a.out, "path: %s\n", info.Path)
			fmt.Fprintf(a.out, "type: %s\n", kind)
			fmt.Fprintf(a.out, "size: %d\n", info.Size)
			if !info.ModTime.IsZero() {
				fmt.Fprintf(a.out, "modified: %s\n", info.ModTime.Format(time.RFC3339))
			}
			if info.ContentType != "" {
				fmt.Fprintf(a.out, "content-type: %s\n", info.ContentType)
			}
			return nil
		},
	}
}

func (a *app) mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <dir>",
		Short: "Create a directory and its parents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.storage.MakeDirectory(cmd.Context(), args[0])
		},
	}
}

func (a *app) rmdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rmdir <dir>",
		Short: "Delete a directory and everything below it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.storage.DeleteDirectory(cmd.Context(), args[0])
		},
	}
}

func (a *app) sumCmd() *cobra.Command {
	var algo string

	cmd := &cobra.Command{
		Use:   "sum <path>",
		Short: "Print the checksum of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			algorithm, err := diskkit.ParseChecksumAlgorithm(algo)
			if err != nil {
				return err
			}
			sum, err := a.storage.Checksum(cmd.Context(), args[0], algorithm)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s  %s\n", sum, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&algo, "algo", string(diskkit.ChecksumSHA256), "Checksum algorithm (md5, sha1, sha256, sha512, crc32, xxhash)")
	return cmd
}
