package main

import "sprinthealth/internal/app"

func main() {
	app.Main()
}
