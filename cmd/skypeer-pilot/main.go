package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/skypeer/cmd/skypeer-pilot/app"
)

func main() {
	app.NewApp().Run()
}
