package main

import "github.com/billbatista/clubledger/cli"

func main() {
	cli.Execute()
}
