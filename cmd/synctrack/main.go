package main

import (
	"github.com/longkeyy/datax-synctrack/core/engine"
)

var version = "dev"

func main() {
	engine.Main(version)
}
