package cmds

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/crashview/crashview/pkg/config"
	"github.com/crashview/crashview/pkg/dump"
	"github.com/crashview/crashview/pkg/logflags"
	"github.com/crashview/crashview/pkg/paging"
	"github.com/crashview/crashview/pkg/report"
	"github.com/crashview/crashview/pkg/version"
	"github.com/crashview/crashview/pkg/winnt"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string

	// pae selects three-level PAE translation instead of the two-level scheme.
	pae bool
	// rawImage forces the image to be treated as a flat raw dump instead of autodetecting.
	rawImage bool
	// useMmap memory-maps raw images instead of issuing positioned reads.
	useMmap bool
	// dirbaseFlag overrides the translation root; required for raw images.
	dirbaseFlag string
	// listHeadFlag overrides the process list head virtual address; required for raw images.
	listHeadFlag string
	// maxProcs bounds a single process list traversal.
	maxProcs int
	// columnsFlag selects the pslist columns.
	columnsFlag []string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const crashviewCommandLongDesc = `Crashview reconstructs operating system state from 32-bit Windows physical
memory images.

It understands flat raw images and kernel crash dumps, translates virtual
addresses by walking the image's own paging structures, and decodes the
kernel process list from the bytes it finds there.`

// New returns an initialized command tree.
func New() *cobra.Command {
	conf = config.LoadConfig()

	rootCommand = &cobra.Command{
		Use:   "crashview",
		Short: "Crashview is a process lister for Windows memory images.",
		Long:  crashviewCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output:
	crashdump	crash dump header parsing
	vtop	address translation
	pslist	process list traversal`)

	imageFlags := pflag.NewFlagSet("image", pflag.ContinueOnError)
	imageFlags.BoolVar(&pae, "pae", false, "Translate addresses with the three-level PAE scheme.")
	imageFlags.BoolVar(&rawImage, "raw", false, "Treat the image as a flat raw dump (requires --dirbase and --list-head).")
	imageFlags.BoolVar(&useMmap, "mmap", false, "Memory-map raw images instead of reading through the file.")
	imageFlags.StringVar(&dirbaseFlag, "dirbase", "", "Physical address of the top-level paging structure (overrides the dump header).")
	imageFlags.StringVar(&listHeadFlag, "list-head", "", "Virtual address of the process list head (overrides the dump header).")

	// 'pslist' subcommand.
	pslistCommand := &cobra.Command{
		Use:   "pslist <image>",
		Short: "Print the active process list of the image.",
		Long: `Print the active process list of the image.

The list is reconstructed by following the kernel's circular process list
through virtual memory. The traversal fails outright on the first
unreadable address or malformed record; it never prints a partial list.`,
		Args: cobra.ExactArgs(1),
		RunE: pslistCmd,
	}
	pslistCommand.Flags().AddFlagSet(imageFlags)
	pslistCommand.Flags().IntVar(&maxProcs, "max-processes", 0, "Maximum number of records decoded before the list is considered corrupt.")
	pslistCommand.Flags().StringSliceVar(&columnsFlag, "columns", nil, "Columns to print (pid, name, create, exit, base, dirbase).")
	rootCommand.AddCommand(pslistCommand)

	// 'vtop' subcommand.
	vtopCommand := &cobra.Command{
		Use:   "vtop <image> <vaddr>",
		Short: "Translate a virtual address to a physical address.",
		Long: `Translate a virtual address to a physical address by walking the image's
paging structures. Use --log --log-output vtop to see the intermediate
table entries.`,
		Args: cobra.ExactArgs(2),
		RunE: vtopCmd,
	}
	vtopCommand.Flags().AddFlagSet(imageFlags)
	rootCommand.AddCommand(vtopCommand)

	// 'convert' subcommand.
	convertCommand := &cobra.Command{
		Use:   "convert <crashdump> <output>",
		Short: "Convert a crash dump to a flat raw image.",
		Long: `Convert a crash dump to a flat raw image by replaying every physical
memory run into a contiguous file, zero-filling the gaps between runs.`,
		Args: cobra.ExactArgs(2),
		RunE: convertCmd,
	}
	rootCommand.AddCommand(convertCommand)

	// 'info' subcommand.
	infoCommand := &cobra.Command{
		Use:   "info <crashdump>",
		Short: "Print the crash dump header summary.",
		Args:  cobra.ExactArgs(1),
		RunE:  infoCmd,
	}
	rootCommand.AddCommand(infoCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("crashview %s\n%s\n", version.CrashviewVersion, version.BuildInfo())
		},
	}
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

func pslistCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput); err != nil {
		return err
	}
	src, err := openImage(args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	trans, err := newTranslator(src)
	if err != nil {
		return err
	}

	var logfn func(string, ...interface{})
	if logflags.PsList() {
		logfn = logflags.PsListLogger().Infof
	}
	walker := winnt.NewWalker(src, trans, logfn)
	if maxProcs > 0 {
		walker.MaxProcesses = maxProcs
	} else if conf.MaxProcesses != nil && *conf.MaxProcesses > 0 {
		walker.MaxProcesses = *conf.MaxProcesses
	}

	procs, err := walker.WalkProcessList(src.ProcessListHead(), src.DirBase())
	if err != nil {
		return err
	}

	cols := columnsFlag
	if len(cols) == 0 {
		cols = conf.PsListColumns
	}
	return report.PsList(os.Stdout, procs, cols)
}

func vtopCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput); err != nil {
		return err
	}
	vaddr, err := parseAddr(args[1], 32)
	if err != nil {
		return fmt.Errorf("invalid virtual address %q: %v", args[1], err)
	}
	src, err := openImage(args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	trans, err := newTranslator(src)
	if err != nil {
		return err
	}
	paddr, err := trans.Translate(uint32(vaddr), src.DirBase())
	if err != nil {
		return err
	}
	fmt.Printf("%#x -> %#x\n", vaddr, paddr)
	return nil
}

func convertCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput); err != nil {
		return err
	}
	src, err := openCrash(args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	if err := dump.WriteRaw(src, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func infoCmd(cmd *cobra.Command, args []string) error {
	if err := logflags.Setup(log, logOutput); err != nil {
		return err
	}
	src, err := openCrash(args[0])
	if err != nil {
		return err
	}
	defer src.Close()

	fmt.Printf("DirBase:             %#x\n", src.DirBase())
	fmt.Printf("PsActiveProcessHead: %#x\n", src.ProcessListHead())
	fmt.Printf("Runs:                %d\n", len(src.Extents()))
	for i, ext := range src.Extents() {
		fmt.Printf("  %2d: phys %#010x - %#010x  file offset %#x\n",
			i, ext.PhysStart, ext.PhysStart+ext.Length, ext.FileOffset)
	}
	return nil
}

func openCrash(path string) (*dump.CrashSource, error) {
	var logfn func(string, ...interface{})
	if logflags.CrashDump() {
		logfn = logflags.CrashDumpLogger().Infof
	}
	return dump.OpenCrash(path, logfn)
}

// openImage opens path as a crash dump, falling back to a flat raw image
// when the crash dump signature is missing and the caller supplied the
// header fields a raw image lacks.
func openImage(path string) (dump.Source, error) {
	if !rawImage {
		src, err := openCrash(path)
		var notCrash dump.ErrNotACrashDump
		if err == nil || !errors.As(err, &notCrash) {
			return src, err
		}
	}

	if dirbaseFlag == "" || listHeadFlag == "" {
		return nil, errors.New("raw images need --dirbase and --list-head")
	}
	dirbase, err := parseAddr(dirbaseFlag, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid --dirbase %q: %v", dirbaseFlag, err)
	}
	listHead, err := parseAddr(listHeadFlag, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid --list-head %q: %v", listHeadFlag, err)
	}
	if useMmap {
		return dump.OpenFlatMmap(path, dirbase, uint32(listHead))
	}
	return dump.OpenFlat(path, dirbase, uint32(listHead))
}

func newTranslator(src dump.Source) (paging.Translator, error) {
	var logfn func(string, ...interface{})
	if logflags.VTop() {
		logfn = logflags.VTopLogger().Infof
	}
	var trans paging.Translator
	if pae {
		trans = paging.NewX86PAE(src, logfn)
	} else {
		trans = paging.NewX86(src, logfn)
	}
	if conf.TLBSize != nil && *conf.TLBSize > 0 {
		return paging.NewTLB(trans, *conf.TLBSize)
	}
	return trans, nil
}

func parseAddr(s string, bits int) (uint64, error) {
	return strconv.ParseUint(s, 0, bits)
}
