package main

import (
	"doorchime/controller"
)

func main() {
	controller.StartHere()
}
