package main

import "github.com/birbparty/birb-call/internal/cli"

func main() {
	cli.Execute()
}
