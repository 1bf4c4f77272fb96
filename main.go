package main

import (
	relay "github.com/putto11262002/relay/app"
)

func main() {
	app := relay.New(nil, nil)
	app.Start()
}
