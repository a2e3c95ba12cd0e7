package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/prepcards/core/card"
)

type seedFile struct {
	Cards []card.NewCard `yaml:"cards"`
}

// seed creates the cards listed in the YAML file at path. Contexts that already have an active card are skipped.
func (cli *commandLine) seed(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading seed file")
	}
	var sf seedFile
	if err = yaml.Unmarshal(data, &sf); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}

	res, err := cli.cardSvc.Seed(ctx, sf.Cards)
	if err != nil {
		return err
	}
	return cli.print(res)
}
