package logger

import (
	"log"
	"os"
)

var (
	Debug   *log.Logger
	Info    *log.Logger
	Warning *log.Logger
	Error   *log.Logger
)

// Init sets up the leveled loggers. Call once from main before anything
// else logs.
func Init() {
	Debug = log.New(os.Stdout, "DEBUG\t", log.Ldate|log.Ltime|log.Lshortfile)
	Info = log.New(os.Stdout, "INFO\t", log.Ldate|log.Ltime)
	Warning = log.New(os.Stdout, "WARNING\t", log.Ldate|log.Ltime)
	Error = log.New(os.Stderr, "ERROR\t", log.Ldate|log.Ltime|log.Lshortfile)
}

func init() {
	// Packages log during tests without main calling Init.
	Init()
}
