package main

import (
	"fmt"

	echoapi "github.com/trezcool/prepcards/apps/api/echo"
)

func (cli *commandLine) token(subject, role string) error {
	token, err := echoapi.GenerateToken(cli.conf, subject, role)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cli.out, token)
	return err
}
