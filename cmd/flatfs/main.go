package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aligator/flatfs"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var defaultLogFormatter = &log.TextFormatter{}

// infoFormatter overrides the default format for Info() log events to
// provide an easier to read output
type infoFormatter struct {
}

func (f *infoFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level == log.InfoLevel {
		return append([]byte(entry.Message), '\n'), nil
	}
	return defaultLogFormatter.Format(entry)
}

// SetupLogging sets the level and formatter of the standard logger.
// 0 only logs errors, 1 informs about what was done, 2 adds debug output of the image
// operations and 3 traces everything.
func SetupLogging(quiet bool, verbose int, verboseSet bool) error {
	log.SetFormatter(new(infoFormatter))
	log.SetLevel(log.InfoLevel)
	if quiet && verboseSet && verbose > 0 {
		return errors.New("can't set quiet and verbose flag at the same time")
	}
	switch {
	case quiet, verbose == 0:
		log.SetLevel(log.ErrorLevel)
	case verbose == 1:
		if verboseSet {
			// Switch back to the standard formatter
			log.SetFormatter(defaultLogFormatter)
		}
		log.SetLevel(log.InfoLevel)
	case verbose == 2:
		log.SetFormatter(defaultLogFormatter)
		log.SetLevel(log.DebugLevel)
	case verbose == 3:
		log.SetFormatter(defaultLogFormatter)
		log.SetLevel(log.TraceLevel)
	default:
		return fmt.Errorf("unsupported verbose level %d", verbose)
	}
	return nil
}

// app is shared by all commands.
type app struct {
	afs    afero.Fs
	out    io.Writer
	config GlobalConfig
}

// openImage opens an image with the standard logger.
func (a *app) openImage(path string, writable bool, opts ...flatfs.Option) (*flatfs.Fs, error) {
	opts = append([]flatfs.Option{flatfs.WithLogger(log.StandardLogger())}, opts...)
	return flatfs.Open(a.afs, path, writable, opts...)
}

func newRootCmd(afs afero.Fs, out io.Writer) *cobra.Command {
	a := &app{afs: afs, out: out, config: DefaultConfig()}

	var (
		quiet      bool
		verbose    int
		configPath string
	)

	root := &cobra.Command{
		Use:           "flatfs",
		Short:         "Inspect and change flat FAT images",
		Long:          "Show, list, extract and insert files of images with a superblock, a FAT and a single root directory.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := SetupLogging(quiet, verbose, cmd.Flags().Changed("verbose")); err != nil {
				return err
			}

			path, explicit := configPath, true
			if path == "" {
				path, explicit = defaultConfigPath(), false
			}

			config, err := readConfig(a.afs, path, explicit)
			if err != nil {
				return err
			}
			a.config = config
			return nil
		},
	}
	root.SetOut(out)

	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet execution")
	root.PersistentFlags().IntVarP(&verbose, "verbose", "v", 1, "Verbosity of output: 0 = quiet, 1 = info, 2 = debug, 3 = trace")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $HOME/.config/flatfs/config.yml)")

	root.AddCommand(
		infoCmd(a),
		listCmd(a),
		getCmd(a),
		putCmd(a),
		formatCmd(a),
	)

	return root
}

func main() {
	if err := newRootCmd(afero.NewOsFs(), os.Stdout).Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
