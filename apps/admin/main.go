package main

import (
	"log"
	"os"

	"github.com/brijeshkumar2024/smart-attendance/core"
	"github.com/brijeshkumar2024/smart-attendance/storage/database"
	sqlxrepos "github.com/brijeshkumar2024/smart-attendance/storage/database/sqlx"

	"github.com/jmoiron/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())
	sdb := sqlx.NewDb(db, conf.Database.Engine)

	// start CLI
	cli := commandLine{
		db:       db,
		usrRepo:  sqlxrepos.NewUserRepository(sdb),
		acadRepo: sqlxrepos.NewAcademicRepository(sdb),
		clsRepo:  sqlxrepos.NewClassRepository(sdb),
	}
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
