package main

import (
	"context"

	"github.com/trezcool/prepcards/storage/database"
)

var runMigrationsFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	return runMigrationsFunc(ctx, cli.db, args[0], args[1:]...)
}
