package main

import (
	"log"
	"os"
	"os/exec"
	"path/filepath"

	"ariga.io/atlas-provider-gorm/gormschema"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/grade"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/interaction"
	"git.mci.dev/mse/sre/phoenix/golang/callgrade/internal/settings"
)

const minArgs = 2

func main() {
	if len(os.Args) < minArgs {
		log.Fatal("please provide a migration name")
	}

	migrationName := filepath.Base(os.Args[1])

	schema, err := gormschema.New("postgres").Load(
		&call.Call{},
		&grade.Grade{},
		&grade.RubricCategory{},
		&grade.GradeCategoryScore{},
		&interaction.CallInteraction{},
		&settings.Setting{},
		&deadletter.EventDeadLetter{},
	)
	if err != nil {
		log.Fatalf("failed to load gorm schema: %v", err)
	}

	tmp, err := os.CreateTemp("", "callgrade-schema-*.sql")
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		err := os.Remove(tmp.Name())
		if err != nil {
			log.Printf("failed to remove temp file %s: %v", tmp.Name(), err)
		}
	}()

	_, err = tmp.WriteString(schema)
	if err != nil {
		log.Fatal(err)
	}

	err = tmp.Close()
	if err != nil {
		log.Printf("failed to close temp file: %v", err)
	}

	abs, err := filepath.Abs(tmp.Name())
	if err != nil {
		log.Fatal(err)
	}

	devURL := os.Getenv("ATLAS_DEV_URL")
	if devURL == "" {
		devURL = "docker://postgres/16-alpine/dev?search_path=public"
	}

	cmd := exec.Command(
		"atlas",
		"migrate", "diff",
		migrationName,
		"--to", "file://"+abs,
		"--dev-url", devURL,
		"--dir", "file://migrations?format=golang-migrate",
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Fatalf("atlas diff failed: %v\n%s", err, out)
	}

	log.Printf("migration generated successfully:\n%s", out)
}
