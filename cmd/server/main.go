package main

import "github.com/dmitrijs2005/certkeeper/internal/server"

func main() {
	server.Main()
}
