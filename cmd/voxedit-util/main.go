// Command-line tool for inspecting artifacts written by voxedit sessions:
// action journals, snapshots, and Arrow exports of object tables.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/voxedit/session"
	"github.com/janelia-flyem/voxedit/voxedit"
)

const helpMessage = `
voxedit-util inspects session journals and snapshots written by voxedit.

Usage: voxedit-util [options] <command> ...

  voxedit-util journal <file.plog>           Stream an action journal as JSON.
  voxedit-util snapshot <file>               Summarize a snapshot file.
  voxedit-util export <snapshot> <out.arrow> Export a snapshot's object table as Arrow IPC.

  -verbose     (flag)    Run in verbose mode.
  -h, -help    (flag)    Show help message

`

var (
	showHelp   = flag.Bool("help", false, "Show help message")
	runVerbose = flag.Bool("verbose", false, "Run in verbose mode")
)

var usage = func() {
	fmt.Print(helpMessage)
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}
	if *runVerbose {
		voxedit.SetLogMode(voxedit.DebugMode)
	}

	args := flag.Args()
	var err error
	switch args[0] {
	case "journal":
		if flag.NArg() != 2 {
			flag.Usage()
			os.Exit(1)
		}
		err = session.StreamJournalFile(os.Stdout, args[1])

	case "snapshot":
		if flag.NArg() != 2 {
			flag.Usage()
			os.Exit(1)
		}
		err = summarizeSnapshot(args[1])

	case "export":
		if flag.NArg() != 3 {
			flag.Usage()
			os.Exit(1)
		}
		err = exportSnapshot(args[1], args[2])

	default:
		fmt.Printf("unknown command %q\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}

func summarizeSnapshot(path string) error {
	id, saved, size, numLabels, err := session.ReadSnapshotHeader(path)
	if err != nil {
		return err
	}
	var fileBytes uint64
	if info, err := os.Stat(path); err == nil {
		fileBytes = uint64(info.Size())
	}
	fmt.Printf("Snapshot:  %s (%s)\n", path, humanize.Bytes(fileBytes))
	fmt.Printf("Session:   %s\n", id)
	fmt.Printf("Saved:     %s\n", saved.Format("2006-01-02 15:04:05"))
	fmt.Printf("Volume:    %d x %d x %d voxels\n", size[0], size[1], size[2])
	fmt.Printf("Objects:   %d entries including background\n", numLabels)
	return nil
}

func exportSnapshot(snapshotPath, outPath string) error {
	s, err := session.LoadSnapshotFile(snapshotPath, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.ExportObjectsArrowFile(outPath); err != nil {
		return err
	}
	fmt.Printf("Exported object table of session %s to %s\n", s.ID(), outPath)
	return nil
}
