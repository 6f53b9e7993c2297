package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/marmos91/dittovfs/pkg/attr"
	"github.com/marmos91/dittovfs/pkg/config"
	"github.com/marmos91/dittovfs/pkg/rpc"
	"github.com/marmos91/dittovfs/pkg/vfs"
	"github.com/spf13/pflag"
)

// clientCommand is a subcommand run against a live daemon.
type clientCommand struct {
	Args    int
	Handler func(ctx context.Context, c *rpc.Client, args []string, opts clientOptions) error
}

type clientOptions struct {
	attributes string
	noFollow   bool
}

var clientCommands = map[string]clientCommand{
	"mounts":  {Args: 0, Handler: cmdMounts},
	"mount":   {Args: 1, Handler: cmdMount},
	"unmount": {Args: 1, Handler: cmdUnmount},
	"ls":      {Args: 2, Handler: cmdList},
	"stat":    {Args: 2, Handler: cmdStat},
	"cat":     {Args: 2, Handler: cmdCat},
}

func runClient(name string, cmd clientCommand, args []string) error {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	socket := flags.StringP("socket", "s", "", "control socket (default: "+config.DefaultSocketPath()+")")
	timeout := flags.Duration("timeout", 30*time.Second, "request timeout")
	var opts clientOptions
	flags.StringVarP(&opts.attributes, "attributes", "a", "standard:*", "attribute matcher for ls and stat")
	flags.BoolVarP(&opts.noFollow, "no-follow", "P", false, "do not follow symlinks")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.NArg() != cmd.Args {
		return fmt.Errorf("%s: expected %d argument(s), got %d", name, cmd.Args, flags.NArg())
	}

	path := *socket
	if path == "" {
		if env := os.Getenv("DITTOVFS_CONTROL_SOCKET_PATH"); env != "" {
			path = env
		} else {
			path = config.DefaultSocketPath()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client, err := rpc.Dial(ctx, path)
	if err != nil {
		return err
	}
	defer client.Close()

	return cmd.Handler(ctx, client, flags.Args(), opts)
}

func (o clientOptions) flags() vfs.QueryFlags {
	if o.noFollow {
		return vfs.QueryNoFollowSymlinks
	}
	return 0
}

func cmdMounts(ctx context.Context, c *rpc.Client, _ []string, _ clientOptions) error {
	mounts, err := c.Mounts(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MOUNT\tNAME\tVISIBLE")
	for _, m := range mounts {
		fmt.Fprintf(w, "%s\t%s\t%t\n", m.Mount, m.DisplayName, m.UserVisible)
	}
	return w.Flush()
}

func cmdMount(ctx context.Context, c *rpc.Client, args []string, _ clientOptions) error {
	spec, err := vfs.ParseMountSpec(args[0])
	if err != nil {
		return err
	}
	info, err := c.Mount(ctx, spec)
	if err != nil {
		return err
	}
	fmt.Println(info.Mount)
	return nil
}

func cmdUnmount(ctx context.Context, c *rpc.Client, args []string, _ clientOptions) error {
	return c.Unmount(ctx, args[0])
}

func cmdList(ctx context.Context, c *rpc.Client, args []string, opts clientOptions) error {
	infos, err := c.Enumerate(ctx, args[0], args[1], opts.attributes, opts.flags())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, fi := range infos {
		fmt.Fprintf(w, "%s\t%d\t%s\n", fi.FileType(), fi.Size(), fi.Name())
	}
	return w.Flush()
}

func cmdStat(ctx context.Context, c *rpc.Client, args []string, opts clientOptions) error {
	fi, err := c.QueryInfo(ctx, args[0], args[1], opts.attributes, opts.flags())
	if err != nil {
		return err
	}
	printInfo(fi)
	return nil
}

func printInfo(fi *attr.FileInfo) {
	for _, name := range fi.Attributes() {
		v, _ := fi.GetAttribute(name)
		fmt.Printf("%s: %s\n", name, strings.TrimSpace(v.String()))
	}
}

func cmdCat(ctx context.Context, c *rpc.Client, args []string, _ clientOptions) error {
	stream, err := c.OpenForRead(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	for {
		data, err := stream.Read(64 << 10)
		if err != nil {
			_, _ = stream.Close()
			return err
		}
		if len(data) == 0 {
			break
		}
		if _, err := os.Stdout.Write(data); err != nil {
			_, _ = stream.Close()
			return err
		}
	}

	_, err = stream.Close()
	return err
}
