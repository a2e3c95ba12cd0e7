package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/prepcards/apps/jobs"
	"github.com/trezcool/prepcards/core"
	"github.com/trezcool/prepcards/core/card"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf    *core.Config
	db      *sqlx.DB
	cardSvc *card.Service
	jobs    *jobs.Runner
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]                 - run a migration command (up, down, status, version, redo, reset...)")
	fmt.Println("  seed -file FILE                        - create the content cards of a YAML file")
	fmt.Println("  runjob -name aggregate|themes|crp-themes|flag|pipeline - run a signal job")
	fmt.Println("  token -subject SUBJECT -role teacher|crp - generate an API token")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	seedCmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	seedFile := seedCmd.String("file", "", "Path to the YAML file listing the cards to create.")

	runJobCmd := flag.NewFlagSet("runjob", flag.ContinueOnError)
	runJobName := runJobCmd.String("name", jobs.Pipeline, "The job to run.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenSubject := tokenCmd.String("subject", "", "The token subject (e.g. an email).")
	tokenRole := tokenCmd.String("role", core.RoleTeacher, "The token role.")

	ctx := context.Background()

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])
	case "seed":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *seedFile == "" {
			seedCmd.Usage()
			return errHelp
		}
		return cli.seed(ctx, *seedFile)
	case "runjob":
		if err := runJobCmd.Parse(args[2:]); err != nil {
			return err
		}
		res, err := cli.jobs.Run(ctx, *runJobName)
		if err != nil {
			return err
		}
		return cli.print(res)
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenSubject == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenSubject, *tokenRole)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) print(v interface{}) error {
	enc := json.NewEncoder(cli.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
