// Package appfs embeds the static files shipped with the binaries:
// database migrations, theme dictionaries and email templates.
package appfs

import "embed"

//go:embed migrations/*.sql dictionaries/*.yaml templates/email/*
var FS embed.FS

const (
	MigrationsDir = "migrations"

	ReflectionDictionary = "dictionaries/reflection.yaml"
	CRPDictionary        = "dictionaries/crp.yaml"
)
