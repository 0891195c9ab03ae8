package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

type command interface {
	Name() string
	Help() string
	Run(context.Context) error
	Register(*flag.FlagSet)
}

var errUnknownCommand = errors.New("unknown command")

type cli struct {
	args []string
}

func (c *cli) run(ctx context.Context) int {
	cmdName, args := parseArgs(c.args)
	if cmdName == "" {
		printUsage()
		return errorExitCode
	}

	cmd, err := find(cmdName)
	if err != nil {
		fmt.Printf("%v: %s\n\n", err, cmdName)
		printUsage()
		return errorExitCode
	}
	flags := flag.NewFlagSet(cmdName, flag.ContinueOnError)
	cmd.Register(flags)
	if err := flags.Parse(args); err != nil {
		return errorExitCode
	}
	if err := cmd.Run(ctx); err != nil {
		fmt.Printf("Command failed: %v\n", err)
		return errorExitCode
	}
	return successExitCode
}

var (
	successExitCode = 0
	errorExitCode   = 1
	commands        = []command{
		&serveCommand{},
		&renderCommand{},
		&melodyCommand{},
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := cli{
		args: os.Args,
	}
	code := c.run(ctx)
	stop()
	os.Exit(code)
}

func find(name string) (command, error) {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd, nil
		}
	}
	return nil, errUnknownCommand
}

func parseArgs(args []string) (string, []string) {
	if len(args) < 2 {
		return "", nil
	}
	return args[1], args[2:]
}

func printUsage() {
	fmt.Println("Piano is a virtual piano server")
	fmt.Println()
	fmt.Println("Usage: piano <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, cmd := range commands {
		fmt.Printf("\t%s\t%s\n", cmd.Name(), cmd.Help())
	}
}
