package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"intelbrief.app/brief/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
