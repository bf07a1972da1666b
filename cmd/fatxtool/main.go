// Command fatxtool is a thin demo CLI over the fatx driver: enough to list,
// read, and stat files in a FATX image from a shell. It is not a general
// disk-image management tool.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dargueta/fatx"
	"github.com/dargueta/fatx/internal/device"
)

func main() {
	app := cli.App{
		Usage: "Inspect a FATX disk image",
		Commands: []*cli.Command{
			{
				Name:      "ls",
				Usage:     "List a directory's contents",
				ArgsUsage: "IMAGE PATH",
				Action:    lsCommand,
			},
			{
				Name:      "cat",
				Usage:     "Print a file's contents to stdout",
				ArgsUsage: "IMAGE PATH",
				Action:    catCommand,
			},
			{
				Name:      "stat",
				Usage:     "Print a file or directory's metadata",
				ArgsUsage: "IMAGE PATH",
				Action:    statCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func openVolume(imagePath string) (*fatx.Volume, error) {
	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return fatx.Open(device.NewFileBackedDevice(f), fatx.Options{FilePermissions: 0644})
}

func lsCommand(c *cli.Context) error {
	v, err := openVolume(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer v.Close()

	h, err := v.OpenDir(c.Args().Get(1))
	if err != nil {
		return err
	}
	defer v.CloseDir(h)

	for {
		entry, err := v.ReadDir(h)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		marker := ""
		if entry.IsDir {
			marker = "/"
		}
		fmt.Println(entry.Name + marker)
	}
}

func catCommand(c *cli.Context) error {
	v, err := openVolume(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer v.Close()

	path := c.Args().Get(1)
	st, err := v.Stat(path)
	if err != nil {
		return err
	}

	buf := make([]byte, 32*1024)
	var offset int64
	for offset < st.Size {
		n, err := v.Read(path, buf, offset)
		if n > 0 {
			if _, werr := os.Stdout.Write(buf[:n]); werr != nil {
				return werr
			}
			offset += int64(n)
		}
		if err == io.EOF || n == 0 {
			break
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func statCommand(c *cli.Context) error {
	v, err := openVolume(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer v.Close()

	st, err := v.Stat(c.Args().Get(1))
	if err != nil {
		return err
	}

	fmt.Printf("mode:     %s\n", st.Mode)
	fmt.Printf("size:     %d\n", st.Size)
	fmt.Printf("uid/gid:  %d/%d\n", st.UID, st.GID)
	fmt.Printf("modified: %s\n", st.ModifiedAt)
	return nil
}
