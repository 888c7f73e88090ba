package main

import (
	"context"
	"log"
	"os"

	inmemdb "github.com/odontoweb/clinica/storage/database/inmem"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	db, err := inmemdb.Open()
	errAndDie(err)
	usrRepo := inmemdb.NewUserRepository(db)
	errAndDie(inmemdb.Seed(context.Background(), usrRepo))

	// start CLI
	cli := commandLine{usrRepo: usrRepo}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
