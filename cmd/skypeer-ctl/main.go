package main

import (
	"github.com/autopeer-io/skypeer/cmd/skypeer-ctl/app"
)

func main() {
	app.NewApp().Run()
}
